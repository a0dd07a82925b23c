package connector

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

// Client is the typed operation surface a front end programs against. Every
// request carries the client source tag; routing to the leader is the
// servers' business.
type Client struct {
	c *Connector
}

func NewClient(c *Connector) *Client {
	return &Client{c: c}
}

func (cl *Client) Register(ctx context.Context, username, password, email string) (wire.RegisterResponse, error) {
	var res wire.RegisterResponse
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return conn.Call(ctx, wire.OpRegister, wire.RegisterRequest{
			Username: username,
			Password: password,
			Email:    email,
			Source:   wire.ClientRequestorID,
		}, &res)
	})
	return res, err
}

func (cl *Client) Login(ctx context.Context, username, password string) (wire.LoginResponse, error) {
	var res wire.LoginResponse
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return conn.Call(ctx, wire.OpLogin, wire.LoginRequest{
			Username: username,
			Password: password,
			Source:   wire.ClientRequestorID,
		}, &res)
	})
	return res, err
}

func (cl *Client) Send(ctx context.Context, sender, recipient, body string) (wire.MessageResponse, error) {
	var res wire.MessageResponse
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return conn.Call(ctx, wire.OpSendMessage, wire.Message{
			Sender:    sender,
			Recipient: recipient,
			Body:      body,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Source:    wire.ClientRequestorID,
		}, &res)
	})
	return res, err
}

func (cl *Client) Users(ctx context.Context, username string) ([]string, error) {
	var names []string
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		names = names[:0]
		return drainStream(ctx, conn, wire.OpGetUsers, wire.GetUsersRequest{Username: username},
			func(item wire.GetUsersResponse) error {
				names = append(names, item.Username)
				return nil
			})
	})
	return names, err
}

func (cl *Client) Settings(ctx context.Context, username string) (wire.GetSettingsResponse, error) {
	var res wire.GetSettingsResponse
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return conn.Call(ctx, wire.OpGetSettings, wire.GetSettingsRequest{Username: username}, &res)
	})
	return res, err
}

func (cl *Client) SaveSettings(ctx context.Context, username string, limit int32) (wire.SaveSettingsResponse, error) {
	var res wire.SaveSettingsResponse
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return conn.Call(ctx, wire.OpSaveSettings, wire.SaveSettingsRequest{
			Username: username,
			Setting:  limit,
			Source:   wire.ClientRequestorID,
		}, &res)
	})
	return res, err
}

func (cl *Client) DeleteAccount(ctx context.Context, username string) (wire.DeleteAccountResponse, error) {
	var res wire.DeleteAccountResponse
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return conn.Call(ctx, wire.OpDeleteAccount, wire.DeleteAccountRequest{
			Username: username,
			Source:   wire.ClientRequestorID,
		}, &res)
	})
	return res, err
}

// Inbox drains up to limit pending messages. Items received before a
// mid-stream failure are kept across the failover retry: the server already
// flipped them to delivered, so dropping them would lose them for good. The
// retry only yields what is still pending, so nothing repeats.
func (cl *Client) Inbox(ctx context.Context, username string, limit int32) ([]wire.Message, error) {
	var msgs []wire.Message
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		return drainStream(ctx, conn, wire.OpGetPendingMessage, wire.PendingMessageRequest{
			Username: username,
			Limit:    limit,
			Source:   wire.ClientRequestorID,
		}, func(item wire.PendingMessageResponse) error {
			msgs = append(msgs, item.Message)
			return nil
		})
	})
	return msgs, err
}

func (cl *Client) History(ctx context.Context, username string) ([]wire.Message, error) {
	var msgs []wire.Message
	err := cl.c.do(ctx, func(conn *transport.Conn) error {
		msgs = msgs[:0]
		return drainStream(ctx, conn, wire.OpGetMessageHistory, wire.MessageHistoryRequest{Username: username},
			func(item wire.Message) error {
				msgs = append(msgs, item)
				return nil
			})
	})
	return msgs, err
}

// Monitor keeps a live delivery stream open, handing every message to
// onMessage. When the stream dies — server failure, leader change — the
// handle is invalidated and the subscription re-established after the retry
// delay. Returns only when ctx ends.
func (cl *Client) Monitor(ctx context.Context, username string, onMessage func(wire.Message)) error {
	for {
		conn, err := cl.c.Conn(ctx)
		if err != nil {
			return err
		}

		err = streamMonitor(ctx, conn, username, onMessage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cl.c.logger.Warn("monitor stream ended, resubscribing", "err", err)
		cl.c.Invalidate()

		if err := cl.c.retry.Wait(ctx); err != nil {
			return err
		}
	}
}

func streamMonitor(ctx context.Context, conn *transport.Conn, username string, onMessage func(wire.Message)) error {
	return drainStream(ctx, conn, wire.OpMonitorMessages, wire.MonitorMessagesRequest{
		Username: username,
		Source:   wire.ClientRequestorID,
	}, func(m wire.Message) error {
		onMessage(m)
		return nil
	})
}

// drainStream runs one server stream to completion, yielding every item.
func drainStream[Item any](ctx context.Context, conn *transport.Conn, op string, req any, yield func(Item) error) error {
	st, err := conn.Stream(ctx, op, req)
	if err != nil {
		return err
	}
	defer st.Close()

	for {
		var item Item
		if err := st.Recv(&item); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := yield(item); err != nil {
			return err
		}
	}
}
