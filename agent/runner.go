// Package agent provides an exported entry point for running the
// CodeHive agent as a library (e.g. from the standalone binary).
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CodeHiveAPP/codehive/internal/agent/client"
	"github.com/CodeHiveAPP/codehive/internal/agent/config"
	"github.com/CodeHiveAPP/codehive/internal/agent/gitutil"
	"github.com/CodeHiveAPP/codehive/internal/agent/termshare"
	"github.com/CodeHiveAPP/codehive/internal/agent/watcher"
	"github.com/CodeHiveAPP/codehive/internal/hive"
	"github.com/CodeHiveAPP/codehive/internal/logging"
	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

// RunConfig holds the per-invocation choices on top of the loaded
// configuration.
type RunConfig struct {
	Config   *config.Config
	Create   bool   // create a room instead of joining
	JoinCode string // room code to join (when not creating)
	Password string // room password (create or join)
	Public   bool   // make a created room discoverable
	ShareCmd string // optional command run under a pty and shared
}

// Run starts the agent and blocks until ctx is cancelled or the
// reconnect budget is exhausted.
func Run(ctx context.Context, rc RunConfig) error {
	cfg := rc.Config
	if !rc.Create && !hive.IsValidRoomCode(rc.JoinCode) {
		return fmt.Errorf("invalid room code %q", rc.JoinCode)
	}

	c := client.New(cfg.URL(), cfg.DevName)
	if branch := gitutil.CurrentBranch(cfg.Project); branch != "" {
		c.SetBranch(branch)
		slog.Info("detected git branch", "branch", branch)
	}
	c.OnFrame = logPeerActivity

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.OnGiveUp = cancel

	runDone := make(chan error, 1)
	go func() {
		runDone <- c.Run(runCtx)
	}()
	defer c.Disconnect()

	if err := c.WaitConnected(runCtx, 10*time.Second); err != nil {
		return err
	}

	if rc.Create {
		created, err := c.CreateRoom(rc.Password, rc.Public, 24)
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		slog.Info("room created", "room", created.Room.Code)
		logging.PrintInviteLink(created.InviteLink)
	} else {
		joined, err := c.JoinRoom(rc.JoinCode, rc.Password)
		if err != nil {
			return fmt.Errorf("join room: %w", err)
		}
		slog.Info("joined room", "room", joined.Room.Code, "members", len(joined.Room.Members))
	}

	w, err := watcher.New(cfg.Project, c.ReportFileChange)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	if rc.ShareCmd != "" {
		go func() {
			code, serr := termshare.Run(runCtx, rc.ShareCmd, cfg.Project, c.ShareTerminal)
			if serr != nil && runCtx.Err() == nil {
				slog.Warn("shared command failed", "error", serr)
				return
			}
			slog.Info("shared command finished", "exit_code", code)
		}()
	}

	<-runCtx.Done()
	return <-runDone
}

// logPeerActivity surfaces the room frames a human cares about.
func logPeerActivity(h protocol.Header, data []byte) {
	switch h.Type {
	case protocol.MsgMemberJoined:
		if msg, err := protocol.DecodeAs[protocol.MemberJoined](data); err == nil {
			slog.Info("member joined", "name", msg.Member.Name)
		}
	case protocol.MsgMemberLeft:
		if msg, err := protocol.DecodeAs[protocol.MemberLeft](data); err == nil {
			slog.Info("member left", "name", msg.Name, "reason", msg.Reason)
		}
	case protocol.MsgChatReceived:
		if msg, err := protocol.DecodeAs[protocol.ChatReceived](data); err == nil {
			slog.Info("chat", "from", msg.Name, "message", msg.Content)
		}
	case protocol.MsgFileChanged:
		if msg, err := protocol.DecodeAs[protocol.FileChanged](data); err == nil {
			slog.Info("peer change", "author", msg.Change.Author, "path", msg.Change.Path,
				"added", msg.Change.LinesAdded, "removed", msg.Change.LinesRemoved)
		}
	case protocol.MsgConflictWarning:
		if msg, err := protocol.DecodeAs[protocol.ConflictWarning](data); err == nil {
			slog.Warn("conflict", "file", msg.File, "authors", msg.Authors)
		}
	case protocol.MsgBranchWarning:
		if msg, err := protocol.DecodeAs[protocol.BranchWarning](data); err == nil {
			slog.Warn("branch divergence", "message", msg.Message)
		}
	case protocol.MsgFileLocked:
		if msg, err := protocol.DecodeAs[protocol.FileLocked](data); err == nil {
			slog.Info("file locked", "file", msg.File, "by", msg.LockedBy)
		}
	case protocol.MsgFileUnlocked:
		if msg, err := protocol.DecodeAs[protocol.FileUnlocked](data); err == nil {
			slog.Info("file unlocked", "file", msg.File, "by", msg.UnlockedBy)
		}
	}
}
