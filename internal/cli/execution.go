package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для выполнений функций.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Run functions and inspect executions",
	}

	cmd.AddCommand(
		newExecutionCreateCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionInvokeCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateExecutionRequest
	var headers []string

	cmd := &cobra.Command{
		Use:   "create FUNCTION_ID",
		Short: "Queue an asynchronous execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parsed, err := parseHeaders(headers)
			if err != nil {
				return err
			}
			req.Headers = parsed

			exec, err := client.CreateExecution(args[0], req)
			if err != nil {
				return err
			}

			printExecution(out, exec)
			out.Success("Execution queued")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Data, "data", "", "Request body passed to the function")
	cmd.Flags().StringVar(&req.Path, "path", "/", "Request path")
	cmd.Flags().StringVar(&req.Method, "method", "POST", "Request method")
	cmd.Flags().StringVar(&req.UserID, "user", "", "Execute on behalf of this user")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header (name:value), can be repeated")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var logs bool

	cmd := &cobra.Command{
		Use:   "show EXECUTION_ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			printExecution(out, exec)
			if logs {
				out.Raw(exec.Logs)
				out.Raw(exec.Errors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&logs, "logs", false, "Print execution logs and errors")

	return cmd
}

func newExecutionInvokeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var method, path, data, jwt string

	cmd := &cobra.Command{
		Use:   "invoke FUNCTION_ID",
		Short: "Call a function synchronously and print its response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Invoke(args[0], strings.ToUpper(method), path, data, jwt)
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(resp)
				return nil
			}
			out.Raw(resp.Body)
			out.Success(fmt.Sprintf("HTTP %d, execution %s", resp.StatusCode, resp.ExecutionID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "Request method")
	cmd.Flags().StringVar(&path, "path", "/", "Request path")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body")
	cmd.Flags().StringVar(&jwt, "jwt", "", "User JWT")

	return cmd
}

func printExecution(out *Output, e *ExecutionResponse) {
	out.Print(
		[]string{"ID", "FUNCTION_ID", "TRIGGER", "STATUS", "CODE", "DURATION"},
		[][]string{{e.ID, e.FunctionID, e.Trigger, e.Status, strconv.Itoa(e.ResponseStatusCode), strconv.FormatFloat(e.Duration, 'f', 3, 64) + "s"}},
		e,
	)
}

// parseHeaders разбирает заголовки вида "name:value".
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected name:value", h)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out, nil
}
