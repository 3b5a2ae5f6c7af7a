// Command chatcli is a terminal client for ActivAmigos room chat.
//
// Lines are sent to the active room. Commands:
//
//	/room GROUP|ACTIVITY <id>   switch room
//	/leave                      leave the room
//	/older                      load older history
//	/status                     refresh moderation status
//	/warn <user_id> <reason>    warn a member (organizers)
//	/reconnect                  redial the websocket
//	/login <token>  /logout
//	/quit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"activamigos-chat/internal/apiclient"
	"activamigos-chat/internal/chatsession"
	"activamigos-chat/internal/config"
	"activamigos-chat/internal/identity"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/transport"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids := identity.NewProvider()
	api := apiclient.New(cfg.APIURL, cfg.RequestTimeout, func() string {
		if id := ids.Current(); id != nil {
			return id.Token
		}
		return ""
	})
	ws := transport.New(cfg.WSURL)
	defer ws.Close()

	sub, cancel := ids.Subscribe()
	defer cancel()
	mgr := chatsession.New(ws, api, sub, chatsession.Options{
		PageSize:       cfg.HistoryPageSize,
		ReconnectDelay: cfg.ReconnectDelay,
	})

	if cfg.Token != "" {
		if err := login(ids, cfg.Token); err != nil {
			log.Fatalf("invalid CHAT_TOKEN: %v", err)
		}
	}

	go func() {
		if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("session stopped: %v", err)
		}
	}()
	go render(ctx, os.Stdout, mgr.Updates())

	if err := repl(ctx, os.Stdin, os.Stdout, mgr, ids); err != nil {
		log.Printf("input closed: %v", err)
	}
}

func login(ids *identity.Provider, token string) error {
	id, err := identity.FromToken(token)
	if err != nil {
		return err
	}
	ids.Set(id)
	return nil
}

type command struct {
	name string
	args []string
	text string
}

// parseLine splits a slash command; anything else is a chat message.
func parseLine(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{name: "send", text: line}
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{name: "send", text: line}
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}
}

func parseRoom(args []string) (models.RoomRef, error) {
	if len(args) != 2 {
		return models.RoomRef{}, errors.New("usage: /room GROUP|ACTIVITY <id>")
	}
	ct, err := models.ParseContextType(strings.ToUpper(args[0]))
	if err != nil {
		return models.RoomRef{}, err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return models.RoomRef{}, errors.New("room id must be a positive integer")
	}
	return models.RoomRef{ContextType: ct, ContextID: id}, nil
}

func repl(ctx context.Context, in io.Reader, out io.Writer, mgr *chatsession.Manager, ids *identity.Provider) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := parseLine(scanner.Text())
		var err error
		switch cmd.name {
		case "send":
			if cmd.text == "" {
				continue
			}
			err = mgr.Send(ctx, cmd.text)
		case "room":
			var room models.RoomRef
			if room, err = parseRoom(cmd.args); err == nil {
				err = mgr.SetRoom(ctx, room)
			}
		case "leave":
			err = mgr.ClearRoom(ctx)
		case "older":
			err = mgr.LoadOlder(ctx)
		case "status":
			err = mgr.RefreshStatus(ctx)
		case "warn":
			if len(cmd.args) < 2 {
				err = errors.New("usage: /warn <user_id> <reason>")
				break
			}
			var target int64
			if target, err = strconv.ParseInt(cmd.args[0], 10, 64); err != nil {
				break
			}
			var res models.IssueWarningResult
			if res, err = mgr.IssueWarning(ctx, target, strings.Join(cmd.args[1:], " ")); err == nil {
				fmt.Fprintf(out, "* warning issued (%d/%d)%s\n", res.WarningCount, models.BanThreshold, bannedSuffix(res.Banned))
			}
		case "reconnect":
			err = mgr.Reconnect(ctx)
		case "login":
			if len(cmd.args) != 1 {
				err = errors.New("usage: /login <token>")
				break
			}
			err = login(ids, cmd.args[0])
		case "logout":
			ids.Clear()
		case "quit":
			return nil
		default:
			err = fmt.Errorf("unknown command /%s", cmd.name)
		}
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
	return scanner.Err()
}

func bannedSuffix(banned bool) string {
	if banned {
		return ", user banned"
	}
	return ""
}

// render prints state changes and messages not shown yet.
func render(ctx context.Context, out io.Writer, updates <-chan chatsession.View) {
	var (
		last  chatsession.View
		shown = map[int64]bool{}
	)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-updates:
			if v.State != last.State || v.Connected != last.Connected {
				fmt.Fprintf(out, "* %s\n", describe(v))
			}
			if len(v.Messages) == 0 {
				shown = map[int64]bool{}
			}
			for _, m := range v.Messages {
				if shown[m.ID] {
					continue
				}
				shown[m.ID] = true
				fmt.Fprintln(out, formatMessage(m))
			}
			if v.HistoryErr != nil && last.HistoryErr == nil {
				fmt.Fprintf(out, "! %v\n", v.HistoryErr)
			}
			last = v
		}
	}
}

func describe(v chatsession.View) string {
	var b strings.Builder
	b.WriteString(v.State.String())
	if v.Room != nil {
		fmt.Fprintf(&b, " room=%s", v.Room)
	}
	if !v.Connected {
		b.WriteString(" (offline)")
	}
	if v.Status != nil {
		fmt.Fprintf(&b, " status=%s color=%s warnings=%d", v.Status.Status, v.Status.SemaphoreColor, v.Status.WarningCount)
	}
	if v.StatusUnknown {
		b.WriteString(" status=unknown")
	}
	return b.String()
}

func formatMessage(m models.ChatMessage) string {
	if m.IsSystem {
		return fmt.Sprintf("[%d] ** %s", m.ID, m.Content)
	}
	name := "unknown"
	if m.Sender != nil {
		name = m.Sender.DisplayName()
	}
	return fmt.Sprintf("[%d] %s: %s", m.ID, name, m.Content)
}
