package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id> <text>",
	Short: "Ask a question about the ingested documents",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, svc.Close(ctx))
	}()

	reply, err := svc.ProcessMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, reply.Reply)
	fmt.Fprintf(out, "\n[intent %s, confidence %.2f, steps %d", reply.Intent, reply.Confidence, len(reply.CascadeStepsRun))
	if len(reply.FailedSteps) > 0 {
		fmt.Fprintf(out, ", failed %v", reply.FailedSteps)
	}
	fmt.Fprintln(out, "]")
	return nil
}
