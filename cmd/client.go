package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/courierchat/courier/config"
	"github.com/courierchat/courier/internal/connector"
	"github.com/courierchat/courier/pkg/wire"
)

// runClient drives the interactive command loop over the failover connector.
// The preferred --ip/--port server goes to the head of the list; the rest
// comes from client.servers in the config file and follows its edits live.
func runClient(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	servers := clientServers(cfg)
	if len(servers) == 0 {
		return fmt.Errorf("no servers: pass --ip/--port or set client.servers")
	}

	conn := connector.New(logger, servers, cfg.Probe.Timeout, cfg.Client.RetryDelay)
	defer conn.Close()
	cfg.Watch(func(fresh *config.Config) {
		conn.UpdateServers(clientServers(fresh))
	})

	client := connector.NewClient(conn)
	repl := &clientREPL{client: client}
	return repl.loop(ctx)
}

func clientServers(cfg *config.Config) []string {
	var servers []string
	if cfg.IP != "" {
		servers = append(servers, net.JoinHostPort(cfg.IP, cfg.Port))
	}
	for _, s := range cfg.Client.Servers {
		if len(servers) > 0 && s == servers[0] {
			continue
		}
		servers = append(servers, s)
	}
	return servers
}

type clientREPL struct {
	client *connector.Client

	username      string
	monitorCancel context.CancelFunc
}

const clientHelp = `commands:
  register <username> <password> [email]
  login <username> <password>
  send <recipient> <message...>
  inbox                 drain pending messages
  history               delivered conversation history
  users                 list all usernames
  settings              show inbox limit
  limit <n>             set inbox limit
  delete                delete this account
  quit`

func (r *clientREPL) loop(ctx context.Context) error {
	fmt.Println(clientHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			r.stopMonitor()
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			r.stopMonitor()
			return nil
		}
		if err := r.dispatch(ctx, fields[0], fields[1:]); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (r *clientREPL) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) < 2 {
			return fmt.Errorf("usage: register <username> <password> [email]")
		}
		email := ""
		if len(args) > 2 {
			email = args[2]
		}
		res, err := r.client.Register(ctx, args[0], args[1], email)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil

	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: login <username> <password>")
		}
		res, err := r.client.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		if res.Status != wire.StatusSuccess {
			return nil
		}
		r.username = args[0]
		r.drainInbox(ctx)
		r.startMonitor()
		return nil

	case "send":
		if err := r.requireLogin(); err != nil {
			return err
		}
		if len(args) < 2 {
			return fmt.Errorf("usage: send <recipient> <message...>")
		}
		res, err := r.client.Send(ctx, r.username, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Println(res.Status)
		return nil

	case "inbox":
		if err := r.requireLogin(); err != nil {
			return err
		}
		r.drainInbox(ctx)
		return nil

	case "history":
		if err := r.requireLogin(); err != nil {
			return err
		}
		msgs, err := r.client.History(ctx, r.username)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s -> %s: %s\n", m.Timestamp, m.Sender, m.Recipient, m.Body)
		}
		return nil

	case "users":
		names, err := r.client.Users(ctx, r.username)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil

	case "settings":
		if err := r.requireLogin(); err != nil {
			return err
		}
		res, err := r.client.Settings(ctx, r.username)
		if err != nil {
			return err
		}
		fmt.Println("inbox limit:", res.Setting)
		return nil

	case "limit":
		if err := r.requireLogin(); err != nil {
			return err
		}
		if len(args) != 1 {
			return fmt.Errorf("usage: limit <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("usage: limit <n>")
		}
		res, err := r.client.SaveSettings(ctx, r.username, int32(n))
		if err != nil {
			return err
		}
		fmt.Println(res.Status)
		return nil

	case "delete":
		if err := r.requireLogin(); err != nil {
			return err
		}
		res, err := r.client.DeleteAccount(ctx, r.username)
		if err != nil {
			return err
		}
		fmt.Println(res.Status)
		if res.Status == wire.StatusSuccess {
			r.stopMonitor()
			r.username = ""
		}
		return nil

	default:
		fmt.Println(clientHelp)
		return nil
	}
}

func (r *clientREPL) requireLogin() error {
	if r.username == "" {
		return fmt.Errorf("login first")
	}
	return nil
}

// drainInbox fetches pending messages up to the stored inbox limit.
func (r *clientREPL) drainInbox(ctx context.Context) {
	limit := int32(0)
	if res, err := r.client.Settings(ctx, r.username); err == nil && res.Status == wire.StatusSuccess {
		limit = res.Setting
	}
	msgs, err := r.client.Inbox(ctx, r.username, limit)
	if err != nil {
		fmt.Println("inbox error:", err)
		return
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.Sender, m.Body)
	}
	fmt.Printf("%d pending message(s)\n", len(msgs))
}

// startMonitor subscribes to live delivery for the logged-in user. The
// connector restarts the stream itself on server failure.
func (r *clientREPL) startMonitor() {
	r.stopMonitor()
	ctx, cancel := context.WithCancel(context.Background())
	r.monitorCancel = cancel

	username := r.username
	go func() {
		_ = r.client.Monitor(ctx, username, func(m wire.Message) {
			fmt.Printf("\n[%s] %s: %s\n> ", m.Timestamp, m.Sender, m.Body)
		})
	}()
}

func (r *clientREPL) stopMonitor() {
	if r.monitorCancel != nil {
		r.monitorCancel()
		r.monitorCancel = nil
	}
}
