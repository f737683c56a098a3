package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// Thin client commands against a running bankd. Amounts are decimal strings
// ("12.34"); command ids come back immediately and `bankd status` polls the
// outcome.

var clientAddr string

func init() {
	for _, c := range []*cobra.Command{
		openCmd, closeAccountCmd, depositCmd, withdrawCmd, transferCmd, balanceCmd, statusCmd, stuckCmd,
	} {
		c.Flags().StringVar(&clientAddr, "addr", "http://localhost:8080", "Base URL of the bankd API")
		rootCmd.AddCommand(c)
	}
	openCmd.Flags().String("overdraft", "0.00", "Overdraft limit")
}

func apiCall(method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, clientAddr+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, payload.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		overdraft, _ := cmd.Flags().GetString("overdraft")
		var out map[string]any
		if err := apiCall(http.MethodPost, "/v1/accounts", map[string]string{"overdraft_limit": overdraft}, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}

var closeAccountCmd = &cobra.Command{
	Use:   "close ACCOUNT_ID",
	Short: "Close an account (irreversible)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiCall(http.MethodPost, "/v1/accounts/"+args[0]+"/close", struct{}{}, nil)
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit ACCOUNT_ID AMOUNT",
	Short: "Deposit funds (asynchronous; returns a command id)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		body := map[string]string{"account_id": args[0], "amount": args[1]}
		if err := apiCall(http.MethodPost, "/v1/commands/deposit", body, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw ACCOUNT_ID AMOUNT",
	Short: "Withdraw funds (asynchronous; returns a command id)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		body := map[string]string{"account_id": args[0], "amount": args[1]}
		if err := apiCall(http.MethodPost, "/v1/commands/withdraw", body, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer SOURCE_ID DEST_ID AMOUNT",
	Short: "Transfer funds between accounts (asynchronous)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		body := map[string]string{"source_id": args[0], "destination_id": args[1], "amount": args[2]}
		if err := apiCall(http.MethodPost, "/v1/commands/transfer", body, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT_ID",
	Short: "Show an account's balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := apiCall(http.MethodGet, "/v1/accounts/"+args[0]+"/balance", nil, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status COMMAND_ID",
	Short: "Show a command's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := apiCall(http.MethodGet, "/v1/commands/"+args[0], nil, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List transfers stuck on a failed compensation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var out map[string]any
		if err := apiCall(http.MethodGet, "/v1/transfers/stuck", nil, &out); err != nil {
			return err
		}
		printJSON(cmd, out)
		return nil
	},
}
