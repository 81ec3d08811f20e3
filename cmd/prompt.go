package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/MimeLyc/clipreel/internal/clips"
)

const (
	downloadFresh  = "download"
	downloadReuse  = "reuse"
	downloadCancel = "cancel"
)

// promptCompileOptions asks for the scope and run choices on the terminal.
// opts carries the defaults shown in the form.
func promptCompileOptions(opts *compileOptions) error {
	kind := string(clips.ScopeGame)
	name := ""
	amount := strconv.Itoa(opts.amount)
	timeFrame := opts.timeFrame
	download := downloadFresh
	if opts.resume {
		download = downloadReuse
	}
	resize := !opts.noResize
	clearDir := opts.clear

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Get top clips by").
				Options(
					huh.NewOption("Game", string(clips.ScopeGame)),
					huh.NewOption("User", string(clips.ScopeBroadcaster)),
				).
				Value(&kind),
			huh.NewInput().
				Title("Name").
				Description("Game name or user login, must be exact").
				Value(&name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Amount of clips").
				Value(&amount).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n <= 0 {
						return errors.New("enter a positive number")
					}
					return nil
				}),
			huh.NewInput().
				Title("Time frame").
				Description(`e.g. "1 week", "3 days", "12h"`).
				Value(&timeFrame).
				Validate(func(s string) error {
					_, err := clips.ParseTimeFrame(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Remove all files from the clips directory first?").
				Value(&clearDir),
			huh.NewSelect[string]().
				Title("Download the clips?").
				Description("Downloading can take a large amount of disk space").
				Options(
					huh.NewOption("Yes, download", downloadFresh),
					huh.NewOption("No, use the clips already downloaded", downloadReuse),
					huh.NewOption("Cancel", downloadCancel),
				).
				Value(&download),
			huh.NewConfirm().
				Title("Resize the clips?").
				Description("Required for freshly downloaded clips").
				Value(&resize),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errAborted
		}
		return fmt.Errorf("prompt: %w", err)
	}
	if download == downloadCancel {
		return errAborted
	}
	return applyPromptAnswers(opts, kind, name, amount, timeFrame, download, resize, clearDir)
}

func applyPromptAnswers(opts *compileOptions, kind, name, amount, timeFrame, download string, resize, clearDir bool) error {
	scopeKind, err := clips.ParseScopeKind(kind)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(amount))
	if err != nil {
		return fmt.Errorf("invalid amount %q", amount)
	}

	opts.game, opts.user = "", ""
	if scopeKind == clips.ScopeGame {
		opts.game = strings.TrimSpace(name)
	} else {
		opts.user = strings.TrimSpace(name)
	}
	opts.amount = n
	opts.timeFrame = timeFrame
	opts.resume = download == downloadReuse
	opts.noResize = !resize
	opts.clear = clearDir
	return nil
}
