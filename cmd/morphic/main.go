package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kaledar/morphic/pkg/chat"
	"github.com/kaledar/morphic/pkg/config"
	"github.com/kaledar/morphic/pkg/events"
	"github.com/kaledar/morphic/pkg/model/factory"
	"github.com/kaledar/morphic/pkg/moderation"
	"github.com/kaledar/morphic/pkg/orchestrator"
	"github.com/kaledar/morphic/pkg/tools"
)

const eventTopic = "chat"

var (
	configFile string
	source     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "morphic [query]",
	Short: "Conversational web-search assistant",
	Long: `Runs a research turn for the given query, or an interactive loop when no
query is given. Configuration comes from MORPHIC_* environment variables or a
config file.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().StringVar(&source, "source", "general",
		"search provider: general, semantic or recommendation")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "zerolog level")
}

func setupLogging() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "parse log level %s", logLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	return nil
}

func buildModerator(settings *config.Settings) *moderation.Moderator {
	if settings.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		return moderation.NewModerator(moderation.NewRedisSource(client, settings.RedisKey))
	}
	if settings.TermsURL != "" {
		return moderation.NewModerator(moderation.NewAFSSource(settings.TermsURL))
	}
	return nil
}

func buildRegistry(settings *config.Settings, video *tools.VideoClient) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	err := registry.Register(tools.NewSearchTool(tools.SearchConfig{
		Source:            tools.SearchSource(source),
		GeneralAPIKey:     settings.TavilyAPIKey,
		GeneralURL:        settings.SearchAPIURL,
		SemanticAPIKey:    settings.ExaAPIKey,
		RecommendationURL: settings.RecommendationURL,
	}))
	if err != nil {
		return nil, err
	}
	if settings.RetrieveEnabled {
		if err := registry.Register(tools.NewRetrieveTool(nil)); err != nil {
			return nil, err
		}
	}
	if video != nil {
		if err := registry.Register(tools.NewVideoTool(video)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// renderEvents prints the streamed turn to stdout.
func renderEvents(msg *message.Message) error {
	defer msg.Ack()
	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed event")
		return nil
	}
	switch ev := e.(type) {
	case *events.EventPartial:
		fmt.Print(ev.Delta)
	case *events.EventFinal:
		fmt.Println()
	case *events.EventToolCall:
		fmt.Printf("\n[calling %s %s]\n", ev.ToolCall.Name, ev.ToolCall.Input)
	case *events.EventToolResult:
		if ev.ToolResult.Errored {
			fmt.Printf("[%s failed: %s]\n", ev.ToolResult.Name, ev.ToolResult.Result)
		}
	case *events.EventError:
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", ev.ErrorString)
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}
	settings, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	mainModel, err := factory.NewModel(settings)
	if err != nil {
		return err
	}
	subModel, err := factory.NewSubModel(settings)
	if err != nil {
		return err
	}

	var video *tools.VideoClient
	if settings.VideoEnabled && settings.VideoAPIURL != "" {
		video = tools.NewVideoClient(settings.VideoAPIURL)
	}
	registry, err := buildRegistry(settings, video)
	if err != nil {
		return err
	}
	moderator := buildModerator(settings)

	router, err := events.NewEventRouter()
	if err != nil {
		return err
	}
	router.AddHandler("render", eventTopic, renderEvents)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	routerDone := make(chan error, 1)
	go func() {
		routerDone <- router.Run(ctx)
	}()
	<-router.Running()

	orch := orchestrator.New(orchestrator.Deps{
		Model:     mainModel,
		SubModel:  subModel,
		Registry:  registry,
		Sink:      router.Sink(eventTopic),
		State:     chat.NewState(),
		Store:     chat.NewAFSStore(settings.ChatsURL),
		Moderator: moderator,
		Video:     video,
	}, orchestrator.Config{
		ToolForced:       settings.UseAssistant(),
		ConstrainedLocal: settings.UseLocal(),
		Moderate:         settings.ModerateTerms,
		VideoEnabled:     settings.VideoEnabled,
		UserID:           "anonymous",
	})

	if len(args) > 0 {
		err = orch.Submit(ctx, strings.Join(args, " "))
	} else {
		err = interactive(ctx, orch)
	}

	cancel()
	<-routerDone
	if closeErr := router.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("failed to close event router")
	}
	return err
}

func interactive(ctx context.Context, orch *orchestrator.Orchestrator) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}
		if err := orch.Submit(ctx, query); err != nil {
			log.Error().Err(err).Msg("turn failed")
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
