package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voicecall/internal/bootstrap"
	"voicecall/internal/domain"
)

const connectTimeout = 15 * time.Second

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "voicecall",
		Short:         "Voice calls with the companion assistant from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	opts.bind(root.PersistentFlags())

	root.AddCommand(
		newCheckCmd(opts),
		newCallCmd(opts),
		newSayCmd(opts),
		newHistoryCmd(opts),
		newChatCmd(opts),
		newPermissionsCmd(opts),
	)
	return root
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show whether voice calls are available for this account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := opts.services(newConsoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			decision, _ := services.Gate.Check(cmd.Context())
			printDecision(cmd.OutOrStdout(), decision)
			return nil
		},
	}
}

func newCallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "call",
		Short: "Start a voice call and run it until it ends or is interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink := newConsoleSink(cmd.OutOrStdout())
			services, err := opts.services(sink)
			if err != nil {
				return err
			}
			return runCall(ctx, services, sink)
		},
	}
}

func runCall(ctx context.Context, services bootstrap.Services, sink *consoleSink) error {
	g, gctx := errgroup.WithContext(ctx)
	background, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		if err := services.Permissions.Watch(background); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Microphone permission watch stopped", "err", err)
		}
		return nil
	})
	if addr := services.Config.Metrics.Addr; addr != "" {
		g.Go(func() error {
			return services.Metrics.Serve(background, addr)
		})
	}

	if err := services.Controller.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	select {
	case <-sink.Ended():
	case <-ctx.Done():
		services.Controller.End()
	}
	cancel()
	return g.Wait()
}

func newSayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text through the reply output chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := opts.services(newConsoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			path, err := services.Output.Speak(cmd.Context(), domain.Reply{Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spoken via %s\n", path)
			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := opts.services(newConsoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			messages, err := services.Backend.ChatHistory(cmd.Context(), page, perPage)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), messages)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "messages per page")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a text message over the chat channel and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := opts.services(newConsoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return services.Channel.Run(gctx)
			})
			g.Go(func() error {
				defer services.Channel.Close()
				if err := waitConnected(gctx, services.Channel.Connected); err != nil {
					return err
				}
				response, err := services.Channel.Ask(gctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if response.Error != "" {
					return fmt.Errorf("chat: %s", response.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "assistant: %s\n", response.Message)
				return nil
			})
			return g.Wait()
		},
	}
}

func newPermissionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "Request microphone access and test the speaker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := opts.services(newConsoleSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			handle, speakerErr, err := services.Permissions.RequestPermissions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "microphone: %s %s\n", handle.Format, handle.Device)
			if speakerErr != nil {
				return speakerErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), "speaker: ok")
			return nil
		},
	}
}

func waitConnected(ctx context.Context, connected func() bool) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("chat channel did not connect: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func printDecision(w io.Writer, decision domain.EntryDecision) {
	fmt.Fprintf(w, "enabled: %t\n", decision.Enabled)
	fmt.Fprintf(w, "action: %s\n", decision.Action)
	fmt.Fprintf(w, "role: %s\n", decision.Status.Role)
	if decision.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", decision.Reason)
	}
	if decision.Indicator != "" {
		fmt.Fprintf(w, "remaining: %s\n", decision.Indicator)
	}
	if decision.Unlimited {
		fmt.Fprintln(w, "remaining: unlimited")
	}
}

func printHistory(w io.Writer, messages []domain.ChatMessage) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "no messages")
		return
	}
	for _, msg := range messages {
		who := "assistant"
		if msg.FromUser {
			who = "you"
		}
		fmt.Fprintf(w, "%s %s: %s\n", msg.Timestamp, who, msg.Content)
	}
}
