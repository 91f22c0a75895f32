package commands

import (
	"github.com/urfave/cli/v3"

	"study-buddy/internal/config"
)

// sessionFlag selects a stored run instead of the current one.
func sessionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "session",
		Usage: "session id (defaults to the current run)",
	}
}

// NewRootCommand builds the studybuddy command tree.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "studybuddy",
		Usage: "upload lectures and documents, follow processing, and study the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "directory for settings and session state",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "processing backend URL (default " + config.DefaultBackendURL + ")",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "upload",
				Usage: "submit a local file or a remote video URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "video or PDF file to upload",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "YouTube URL to process",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "follow processing until it finishes",
					},
				},
				Action: UploadAction,
			},
			{
				Name:   "watch",
				Usage:  "follow processing of the current run",
				Action: WatchAction,
			},
			{
				Name:  "results",
				Usage: "show one view of a finished run",
				Flags: []cli.Flag{
					sessionFlag(),
					&cli.StringFlag{
						Name:  "view",
						Usage: "transcript, notes, flashcards, or mindmap",
						Value: "transcript",
					},
				},
				Action: ResultsAction,
			},
			{
				Name:  "export",
				Usage: "export the notes as a PDF",
				Flags: []cli.Flag{
					sessionFlag(),
					&cli.StringFlag{
						Name:  "out",
						Usage: "output file or directory, or - for stdout (defaults to the export directory)",
					},
				},
				Action: ExportAction,
			},
			{
				Name:  "chat",
				Usage: "talk to the study assistant",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "message",
						Usage: "message to send; reads lines from stdin when omitted",
					},
				},
				Action: ChatAction,
			},
			{
				Name:  "play",
				Usage: "serve the source media of a run over HTTP",
				Flags: []cli.Flag{
					sessionFlag(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address",
						Value: "127.0.0.1:8090",
					},
				},
				Action: PlayAction,
			},
			{
				Name:   "doctor",
				Usage:  "check backend reachability and local directories",
				Action: DoctorAction,
			},
			{
				Name:  "settings",
				Usage: "show settings, or save the given overrides",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "backend-url",
						Usage: "processing backend URL to save",
					},
					&cli.StringFlag{
						Name:  "export-dir",
						Usage: "default directory for exported notes",
					},
				},
				Action: SettingsAction,
			},
			{
				Name:  "login",
				Usage: "sign in and remember the account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Required: true,
					},
				},
				Action: LoginAction,
			},
		},
	}
}
