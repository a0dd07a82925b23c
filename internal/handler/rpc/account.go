package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

func (h *Handler) register(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.RegisterRequest](payload)
	if err != nil {
		return nil, err
	}
	src := model.ParseSource(req.Source)

	if src == model.SourceClient && !h.membership.IsLeader() {
		res, err := forwardUnary[wire.RegisterResponse](ctx, h, wire.OpRegister, req)
		if err != nil {
			return wire.RegisterResponse{Status: wire.StatusFailure, Message: "User registration failed."}, nil
		}
		return res, nil
	}

	if err := h.chat.Register(ctx, req.Username, req.Password, req.Email); err != nil {
		if errors.Is(err, model.ErrDuplicateKey) {
			return wire.RegisterResponse{Status: wire.StatusFailure, Message: auth.MsgUsernameExists}, nil
		}
		h.logger.Error("register failed", "username", req.Username, "err", err)
		return wire.RegisterResponse{Status: wire.StatusFailure, Message: "User registration failed."}, nil
	}

	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpRegister, fanned)
	}
	return wire.RegisterResponse{Status: wire.StatusSuccess, Message: "Registration successful"}, nil
}

func (h *Handler) login(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.LoginRequest](payload)
	if err != nil {
		return nil, err
	}
	src := model.ParseSource(req.Source)

	if src == model.SourceClient && !h.membership.IsLeader() {
		res, err := forwardUnary[wire.LoginResponse](ctx, h, wire.OpLogin, req)
		if err != nil {
			return wire.LoginResponse{Status: wire.StatusFailure, Message: "User login failed."}, nil
		}
		return res, nil
	}

	if err := h.chat.Login(ctx, req.Username, req.Password); err != nil {
		if errors.Is(err, model.ErrAuthFailure) {
			return wire.LoginResponse{Status: wire.StatusFailure, Message: auth.MsgInvalidCredentials}, nil
		}
		h.logger.Error("login failed", "username", req.Username, "err", err)
		return wire.LoginResponse{Status: wire.StatusFailure, Message: "User login failed."}, nil
	}

	// Login touches last_login, so it replicates like any other write.
	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpLogin, fanned)
	}
	return wire.LoginResponse{Status: wire.StatusSuccess, Message: "Login successful"}, nil
}

// getSettings reads local state; every server carries the replicated users
// table, so no forward is needed.
func (h *Handler) getSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.GetSettingsRequest](payload)
	if err != nil {
		return nil, err
	}
	limit, err := h.chat.Settings(ctx, req.Username)
	if err != nil {
		h.logger.Error("get settings failed", "username", req.Username, "err", err)
		return wire.GetSettingsResponse{Status: wire.StatusFailure}, nil
	}
	return wire.GetSettingsResponse{Status: wire.StatusSuccess, Setting: limit}, nil
}

func (h *Handler) saveSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.SaveSettingsRequest](payload)
	if err != nil {
		return nil, err
	}
	src := model.ParseSource(req.Source)

	if src == model.SourceClient && !h.membership.IsLeader() {
		res, err := forwardUnary[wire.SaveSettingsResponse](ctx, h, wire.OpSaveSettings, req)
		if err != nil {
			return wire.SaveSettingsResponse{Status: wire.StatusFailure}, nil
		}
		return res, nil
	}

	if err := h.chat.SaveSettings(ctx, req.Username, req.Setting); err != nil {
		h.logger.Error("save settings failed", "username", req.Username, "err", err)
		return wire.SaveSettingsResponse{Status: wire.StatusFailure}, nil
	}

	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpSaveSettings, fanned)
	}
	return wire.SaveSettingsResponse{Status: wire.StatusSuccess}, nil
}

func (h *Handler) deleteAccount(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.DeleteAccountRequest](payload)
	if err != nil {
		return nil, err
	}
	src := model.ParseSource(req.Source)

	if src == model.SourceClient && !h.membership.IsLeader() {
		res, err := forwardUnary[wire.DeleteAccountResponse](ctx, h, wire.OpDeleteAccount, req)
		if err != nil {
			return wire.DeleteAccountResponse{Status: wire.StatusFailure}, nil
		}
		return res, nil
	}

	if err := h.chat.DeleteAccount(ctx, req.Username); err != nil {
		h.logger.Error("delete account failed", "username", req.Username, "err", err)
		return wire.DeleteAccountResponse{Status: wire.StatusFailure}, nil
	}

	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpDeleteAccount, fanned)
	}
	return wire.DeleteAccountResponse{Status: wire.StatusSuccess}, nil
}

// getUsers streams every known username from the local users table.
func (h *Handler) getUsers(ctx context.Context, payload json.RawMessage, stream *transport.ServerStream) error {
	if _, err := decode[wire.GetUsersRequest](payload); err != nil {
		return err
	}
	names, err := h.chat.Usernames(ctx)
	if err != nil {
		h.logger.Error("list users failed", "err", err)
		return err
	}
	for _, name := range names {
		if err := stream.Send(wire.GetUsersResponse{Status: wire.StatusSuccess, Username: name}); err != nil {
			return err
		}
	}
	return nil
}
