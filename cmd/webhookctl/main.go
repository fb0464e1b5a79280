// Package main provides webhookctl, a helper for exercising the webhook service.
// Commands:
//   - sign: Print the HMAC-SHA256 signature for a body
//   - send datadog: POST a sample signed Datadog alert
//   - send process: POST a sample customer message to process-webhook
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asperpharma/webhook-service/internal/auth"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "webhookctl",
		Short:         "Sign and send test webhooks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a sample webhook",
	}
	sendCmd.AddCommand(sendDatadogCmd())
	sendCmd.AddCommand(sendProcessCmd())

	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(sendCmd)
	return rootCmd
}

// --- sign ---

func signCmd() *cobra.Command {
	var secret, file string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the hex HMAC-SHA256 of a body",
		Long:  "Reads the body from --file, or stdin when no file is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}

			var (
				body []byte
				err  error
			)
			if file == "" || file == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), auth.Sign(body, secret))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Shared secret")
	cmd.Flags().StringVar(&file, "file", "", "File containing the exact body bytes")
	return cmd
}

// --- send ---

type sendOptions struct {
	url              string
	secret           string
	invalidSignature bool
	timeout          time.Duration
}

func (o *sendOptions) bind(cmd *cobra.Command, defaultURL string) {
	cmd.Flags().StringVar(&o.url, "url", defaultURL, "Endpoint URL")
	cmd.Flags().StringVar(&o.secret, "secret", "", "Shared secret used to sign the body")
	cmd.Flags().BoolVar(&o.invalidSignature, "invalid-signature", false, "Send a deliberately wrong signature")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 90*time.Second, "Request timeout")
}

// signature returns the header value to send, or "" when nothing should be sent.
func (o *sendOptions) signature(body []byte) string {
	switch {
	case o.invalidSignature:
		return auth.SignaturePrefix + strings.Repeat("0", 64)
	case o.secret != "":
		return auth.SignaturePrefix + auth.Sign(body, o.secret)
	default:
		return ""
	}
}

func sendDatadogCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "datadog",
		Short: "Send a sample Datadog alert",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := sampleDatadogAlert(time.Now())
			headers := map[string]string{}
			if sig := opts.signature(body); sig != "" {
				headers["DD-Signature"] = sig
			}
			return post(cmd, opts, opts.url, body, headers)
		},
	}

	opts.bind(cmd, "http://localhost:8080/datadog-webhook")
	return cmd
}

func sendProcessCmd() *cobra.Command {
	var (
		opts     sendOptions
		route    string
		customer string
		message  string
		eventID  string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Send a sample customer message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := sampleMessage(route, customer, message, eventID)
			if err != nil {
				return err
			}

			target, err := url.Parse(opts.url)
			if err != nil {
				return fmt.Errorf("invalid --url: %w", err)
			}
			if route != "" {
				q := target.Query()
				q.Set("route", route)
				target.RawQuery = q.Encode()
			}

			headers := map[string]string{}
			if sig := opts.signature(body); sig != "" {
				headers["x-webhook-signature"] = sig
			}
			return post(cmd, opts, target.String(), body, headers)
		},
	}

	opts.bind(cmd, "http://localhost:8080/process-webhook")
	cmd.Flags().StringVar(&route, "route", "generic", "Route: gorgias, manychat or generic")
	cmd.Flags().StringVar(&customer, "customer", "cli-customer", "Customer identifier")
	cmd.Flags().StringVar(&message, "message", "What should I use for dry skin?", "Customer message")
	cmd.Flags().StringVar(&eventID, "event-id", "", "Idempotency id placed in the body")
	return cmd
}

func post(cmd *cobra.Command, opts sendOptions, target string, body []byte, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Status: %d\n", resp.StatusCode)
	fmt.Fprintf(w, "Body: %s\n", strings.TrimSpace(string(out)))
	return nil
}
