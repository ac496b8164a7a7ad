package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/soundgate/config"
	"github.com/xeptore/soundgate/constant"
	"github.com/xeptore/soundgate/log"
	"github.com/xeptore/soundgate/soundcloud"
	"github.com/xeptore/soundgate/soundcloud/types"
)

func main() {
	logger := log.NewDefault()

	//nolint:exhaustruct
	app := &cli.Command{
		Name:    "soundgate",
		Version: constant.Version,
		Metadata: map[string]any{
			"compiled_at": constant.CompileTime,
		},
		Suggest:                    true,
		Usage:                      "SoundCloud stream-source resolver",
		EnableShellCompletion:      true,
		ShellCompletionCommandName: "shell-completion",
		AllowExtFlags:              false,
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Config file path",
				Required: false,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "search",
				Usage:     "Search tracks by free-text query",
				ArgsUsage: "<query>",
				Action:    searchTracks,
			},
			//nolint:exhaustruct
			{
				Name:      "artist",
				Usage:     "List an artist's uploaded tracks",
				ArgsUsage: "<artist name>",
				Action:    artistTracks,
			},
			//nolint:exhaustruct
			{
				Name:      "resolve",
				Usage:     "Resolve a transcoding endpoint into a playable media URL",
				ArgsUsage: "<transcoding endpoint URL>",
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:     "permalink",
						Usage:    "Track permalink page URL, enables the hydration fallback",
						Required: false,
					},
				},
				Action: resolveStream,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			os.Exit(1)
		}

		var exitCode exitCodeError
		if errors.As(err, &exitCode) {
			os.Exit(int(exitCode))
		}

		logger.Error().Err(err).Msg("Application exited with error")
		os.Exit(10)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return "error with exit code: " + strconv.Itoa(int(e))
}

func bootstrap(cmd *cli.Command) (zerolog.Logger, *soundcloud.Client, error) {
	logger := log.NewDefault()

	if err := godotenv.Load(); nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return logger, nil, fmt.Errorf("load .env file: %v", err)
		}
		logger.Debug().Msg(".env file was not found")
	} else {
		logger.Debug().Msg(".env file was loaded")
	}

	conf, err := config.Load(cmd.String("config"))
	if nil != err {
		return logger, nil, fmt.Errorf("load config: %v", err)
	}

	logger = log.FromConfig(conf.Log)

	logger.Debug().Dict("config", conf.ToDict()).Msg("Config loaded")

	return logger, soundcloud.NewClient(conf.SoundCloud), nil
}

func searchTracks(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, client, err := bootstrap(cmd)
	if nil != err {
		return err
	}

	query := cmd.Args().First()
	if query == "" {
		return errors.New("search query is required")
	}

	tracks := client.Search(ctx, logger, query)
	if len(tracks) == 0 {
		logger.Info().Str("query", query).Msg("No tracks found")
		return exitCodeError(1)
	}

	renderTracks(tracks)

	return nil
}

func artistTracks(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, client, err := bootstrap(cmd)
	if nil != err {
		return err
	}

	name := cmd.Args().First()
	if name == "" {
		return errors.New("artist name is required")
	}

	tracks := client.ArtistTracks(ctx, logger, name)
	if len(tracks) == 0 {
		logger.Info().Str("artist", name).Msg("No tracks found")
		return exitCodeError(1)
	}

	renderTracks(tracks)

	return nil
}

func resolveStream(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, client, err := bootstrap(cmd)
	if nil != err {
		return err
	}

	endpoint := cmd.Args().First()
	permalink := cmd.String("permalink")
	if endpoint == "" && permalink == "" {
		return errors.New("a transcoding endpoint URL or --permalink is required")
	}

	mediaURL, ok := client.ResolveStreamURL(ctx, logger, endpoint, permalink)
	if !ok {
		logger.Warn().Msg("Track is currently unplayable")
		return exitCodeError(2)
	}

	fmt.Println(mediaURL)

	return nil
}

func renderTracks(tracks []types.Track) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"ID", "Title", "Artist", "Duration", "Plays", "Permalink"})
	for _, t := range tracks {
		w.AppendRow(table.Row{
			t.ID,
			t.Title,
			t.User.Username,
			formatDuration(t.DurationSeconds()),
			t.PlaybackCount,
			t.PermalinkURL,
		})
	}
	w.SetStyle(table.StyleLight)
	w.Render()
}

func formatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
