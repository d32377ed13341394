package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/sendmessage/internal/relay"
)

// sendMessage posts a relay request and decodes the result envelope.
func sendMessage(ctx context.Context, client *http.Client, base string, form url.Values) (relay.Result, error) {
	endpoint := strings.TrimSuffix(base, "/") + "/plugins/sendmessage/sendmessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return relay.Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return relay.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return relay.Result{}, fmt.Errorf("relay returned HTTP %d", resp.StatusCode)
	}
	var res relay.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return relay.Result{}, fmt.Errorf("decode relay response: %w", err)
	}
	return res, nil
}

// send <from> <to> <content>: ask the relay to deliver a message.
func sendCmd() *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "send <from> <to> <content>",
		Short: "Send a message through the relay",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := url.Values{
				relay.ParamSecret:       {secret},
				relay.ParamFromUser:     {args[0]},
				relay.ParamFromResource: {resource},
				relay.ParamToUser:       {args[1]},
				relay.ParamContent:      {args[2]},
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			res, err := sendMessage(ctx, http.DefaultClient, relayURL, form)
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("relay refused message: %s (code %d)", res.Message, res.Code)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "relay shared secret")
	cmd.Flags().StringVar(&resource, "resource", "relayctl", "sender resource")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
