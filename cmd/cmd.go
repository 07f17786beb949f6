// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func deviceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "Device ID (defaults to the selected device)",
	}
}

// setupCommand initializes configuration and storage
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the credential store",
		Action: r.Setup,
	}
}

// authCommand handles authorization operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize in the browser, reusing stored credentials when still valid",
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show stored credential state without contacting Spotify",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Force a new authorization, showing the consent dialog",
				Action: r.AuthRefresh,
			},
			{
				Name:   "logout",
				Usage:  "Remove stored credentials",
				Action: r.AuthLogout,
			},
		},
	}
}

// devicesCommand handles playback device discovery and selection
func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "Playback devices",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List available devices",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json, or csv",
						Value:   "text",
					},
				},
				Action: r.DevicesList,
			},
			{
				Name:  "select",
				Usage: "Remember a device by ID or name for later commands",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "device",
					},
				},
				Action: r.DevicesSelect,
			},
			{
				Name:   "clear",
				Usage:  "Forget the selected device",
				Action: r.DevicesClear,
			},
		},
	}
}

// playCommand runs a playback session for one track
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Play a track and follow it until it finishes (Ctrl+C pauses and exits)",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "track",
			},
		},
		Flags: []cli.Flag{
			deviceFlag(),
			&cli.BoolFlag{
				Name:  "detach",
				Usage: "Start playback and exit without following it",
			},
		},
		Action: r.Play,
	}
}

func pauseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "pause",
		Usage:  "Pause playback",
		Flags:  []cli.Flag{deviceFlag()},
		Action: r.Pause,
	}
}

func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "resume",
		Usage:  "Resume playback",
		Flags:  []cli.Flag{deviceFlag()},
		Action: r.Resume,
	}
}

func volumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "volume",
		Usage: "Show the volume, or set it to a percentage",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "percent",
			},
		},
		Flags:  []cli.Flag{deviceFlag()},
		Action: r.Volume,
	}
}
