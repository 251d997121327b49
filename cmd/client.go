package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
	"github.com/theapemachine/a2a-payments/pkg/service"
	"github.com/theapemachine/a2a-payments/pkg/skills"
)

var (
	agentURLFlag   string
	tokenFlag      string
	taskIDFlag     string
	historyFlag    int
	webhookURLFlag string
	pushTokenFlag  string
	subscriberFlag string

	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	textStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Talk to an A2A agent",
		Long:  longClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	sendCmd = &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message with message/send",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := newAgentClient().SendMessage(cmd.Context(), textParams(strings.Join(args, " "), nil))

			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}

	streamCmd = &cobra.Command{
		Use:   "stream [text]",
		Short: "Send a message with message/stream and print every event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAgentClient().StreamMessage(
				cmd.Context(), textParams(strings.Join(args, " "), nil), printEvent,
			)
		},
	}

	getCmd = &cobra.Command{
		Use:   "get",
		Short: "Fetch a task with tasks/get",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := newAgentClient().GetTask(cmd.Context(), taskIDFlag, historyFlag)

			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}

	cancelCmd = &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a task with tasks/cancel",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := newAgentClient().CancelTask(cmd.Context(), taskIDFlag)

			if err != nil {
				return err
			}

			fmt.Println(task.String())
			return nil
		},
	}

	pushCmd = &cobra.Command{
		Use:   "push",
		Short: "Register a webhook for a task with tasks/pushNotificationConfig/set",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := newAgentClient().SetPushNotificationConfig(cmd.Context(), a2a.TaskPushNotificationConfig{
				TaskID: taskIDFlag,
				PushNotificationConfig: a2a.PushNotificationConfig{
					URL:   webhookURLFlag,
					Token: pushTokenFlag,
				},
			})

			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render("Push notifications registered"))
			fmt.Println(textStyle.Render(fmt.Sprintf("%s → %s", config.TaskID, config.PushNotificationConfig.URL)))

			return nil
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Get an access token from the agent's development ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			grant, err := newAgentClient().RequestToken(cmd.Context(), subscriberFlag)

			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render("Access token for " + grant.Subscriber))
			fmt.Println(textStyle.Render(fmt.Sprintf("balance: %d credits", grant.Balance)))
			fmt.Println(grant.AccessToken)

			return nil
		},
	}

	clientDemoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run every scenario against the agent",
		Long:  longDemo,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context())
		},
	}
)

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(sendCmd, streamCmd, getCmd, cancelCmd, pushCmd, tokenCmd, clientDemoCmd)

	clientCmd.PersistentFlags().StringVarP(&agentURLFlag, "url", "u", "http://localhost:8000/a2a", "JSON-RPC endpoint of the agent")
	clientCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", os.Getenv("A2A_TOKEN"), "Bearer token sent with every request")

	for _, cmd := range []*cobra.Command{getCmd, cancelCmd, pushCmd} {
		cmd.Flags().StringVar(&taskIDFlag, "task", "", "Task id")
		_ = cmd.MarkFlagRequired("task")
	}

	getCmd.Flags().IntVar(&historyFlag, "history", 0, "Keep only the last N history messages")

	pushCmd.Flags().StringVar(&webhookURLFlag, "webhook", "http://localhost:8001/webhook", "Webhook url")
	pushCmd.Flags().StringVar(&pushTokenFlag, "push-token", "", "Token echoed back in the notification header")

	tokenCmd.Flags().StringVar(&subscriberFlag, "subscriber", "demo", "Subscriber to issue the token for")

	clientDemoCmd.Flags().StringVar(&webhookURLFlag, "webhook", "http://localhost:8001/webhook", "Webhook url for the push scenario")
	clientDemoCmd.Flags().StringVar(&subscriberFlag, "subscriber", "demo", "Subscriber to request a token for when the agent requires payment")
}

func newAgentClient() *a2a.Client {
	return a2a.NewClient(agentURLFlag, a2a.WithBearerToken(tokenFlag))
}

func textParams(text string, push *a2a.PushNotificationConfig) a2a.MessageSendParams {
	params := a2a.MessageSendParams{Message: *a2a.NewTextMessage(a2a.RoleUser, text)}

	if push != nil {
		params.Configuration = &a2a.MessageSendConfiguration{PushNotificationConfig: push}
	}

	return params
}

func printEvent(event *a2a.StreamEvent) {
	state := string(event.State())

	if state == "" {
		state = event.Kind
	}

	fmt.Printf("%s %s\n", stateStyle.Render(fmt.Sprintf("[%s]", state)), textStyle.Render(event.Text()))
}

func printResult(task *a2a.Task) {
	text := resultText(task)

	line := fmt.Sprintf("[%s]", task.Status.State)

	if credits, ok := skills.Credits(metadataOf(task)); ok {
		line += fmt.Sprintf(" (%d credits)", credits)
	}

	fmt.Printf("%s %s\n", stateStyle.Render(line), textStyle.Render(text))
}

/*
resultText prefers the status message and falls back to the newest history
entry, which is all a freshly submitted task has.
*/
func resultText(task *a2a.Task) string {
	if task.Status.Message != nil {
		return task.Status.Message.String()
	}

	if last := task.LastMessage(); last != nil {
		return last.String()
	}

	return ""
}

func metadataOf(task *a2a.Task) map[string]any {
	if task.Status.Message == nil {
		return nil
	}

	return task.Status.Message.Metadata
}

/*
runDemo walks through every intent in order. When the agent card says
payments are required and no token was given, it asks the development
ledger for one first.
*/
func runDemo(ctx context.Context) error {
	client := newAgentClient()

	card, err := client.FetchAgentCard(ctx)

	if err != nil {
		return fmt.Errorf("failed to fetch agent card: %w", err)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Connected to %s (%s)", card.Name, card.URL)))

	if tokenFlag == "" && paymentsRequired(card) {
		grant, err := client.RequestToken(ctx, subscriberFlag)

		if err != nil {
			return fmt.Errorf("agent requires payment and no token could be issued: %w", err)
		}

		fmt.Println(textStyle.Render(fmt.Sprintf("issued token for %s, balance %d", grant.Subscriber, grant.Balance)))
		tokenFlag = grant.AccessToken
		client = newAgentClient()
	}

	scenarios := []string{
		"Hello there!",
		"Calculate 15 * 7",
		"What's the weather in London?",
		`Translate "hello" to Spanish`,
	}

	for _, text := range scenarios {
		fmt.Println("\n" + titleStyle.Render("> "+text))

		task, err := client.SendMessage(ctx, textParams(text, nil))

		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}

		printResult(task)
	}

	fmt.Println("\n" + titleStyle.Render("> Stream me some updates"))

	if err := client.StreamMessage(ctx, textParams("Stream me some updates", nil), printEvent); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
	}

	fmt.Println("\n" + titleStyle.Render("> Send me a push notification"))

	task, err := client.SendMessage(ctx, textParams("Send me a push notification", &a2a.PushNotificationConfig{
		URL:   webhookURLFlag,
		Token: "demo",
	}))

	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return nil
	}

	printResult(task)

	return waitForTask(ctx, client, task.ID)
}

/*
waitForTask polls until the push scenario's task is terminal, so the demo
shows the same final state the webhook receives.
*/
func waitForTask(ctx context.Context, client *a2a.Client, taskID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.After(2 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			log.Warn("gave up waiting for task", "taskId", taskID)
			return nil
		case <-ticker.C:
		}

		task, err := client.GetTask(ctx, taskID, 1)

		if err != nil {
			return err
		}

		if task.Status.State.Terminal() {
			printResult(task)
			return nil
		}
	}
}

func paymentsRequired(card *a2a.AgentCard) bool {
	for _, extension := range card.Capabilities.Extensions {
		if extension.URI == service.PaymentsExtensionURI && extension.Required {
			return true
		}
	}

	return false
}

var longClient = `
Talk to an A2A agent over JSON-RPC. Set A2A_TOKEN or pass --token when the
agent charges credits.

Examples:
  a2a-payments client send "Calculate 15 * 7"
  a2a-payments client stream "Stream me some updates"
  a2a-payments client get --task <id> --history 2
  a2a-payments client cancel --task <id>
  a2a-payments client push --task <id> --webhook http://localhost:8001/webhook
  a2a-payments client token --subscriber alice
`

var longDemo = `
Run the greeting, calculation, weather, translation, streaming and push
notification scenarios in order. Start the webhook receiver first to see the
push notifications arrive.

Examples:
  a2a-payments client demo --url http://localhost:8000/a2a
`
