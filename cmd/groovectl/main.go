// Package main provides the command line client for the player server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/groovebox/internal/api/connect"
)

var (
	app    = kingpin.New("groovectl", "GrooveBox command line client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token").Envar("GROOVEBOX_TOKEN").String()

	statusCmd   = app.Command("status", "Show the playback status").Default()
	playCmd     = app.Command("play", "Start or resume playback")
	pauseCmd    = app.Command("pause", "Pause playback")
	stopCmd     = app.Command("stop", "Stop playback")
	nextCmd     = app.Command("next", "Skip to the next track")
	previousCmd = app.Command("previous", "Go back to the previous track").Alias("prev")

	seekCmd      = app.Command("seek", "Seek within the current track")
	seekPosition = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume level (0-100)").Required().Int()

	shuffleCmd     = app.Command("shuffle", "Enable or disable shuffle")
	shuffleEnabled = shuffleCmd.Arg("enabled", "on or off").Required().Enum("on", "off")

	repeatCmd  = app.Command("repeat", "Set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "off, one or all").Required().Enum("off", "one", "all")

	jumpCmd   = app.Command("jump", "Play the playlist entry at index")
	jumpIndex = jumpCmd.Arg("index", "Playlist index").Required().Int()

	loadCmd     = app.Command("load", "Load files, directories or M3U playlists on the server")
	loadPaths   = loadCmd.Arg("paths", "Paths on the server").Required().Strings()
	loadReplace = loadCmd.Flag("replace", "Replace the playlist instead of appending").Bool()

	removeCmd   = app.Command("remove", "Remove a playlist entry")
	removeIndex = removeCmd.Arg("index", "Playlist index").Required().Int()

	moveCmd  = app.Command("move", "Move a playlist entry")
	moveFrom = moveCmd.Arg("from", "Source index").Required().Int()
	moveTo   = moveCmd.Arg("to", "Destination index").Required().Int()

	listCmd = app.Command("list", "List the playlist")

	searchCmd     = app.Command("search", "Search the playlist")
	searchQuery   = searchCmd.Arg("query", "Search terms").Required().Strings()
	searchLibrary = searchCmd.Flag("library", "Search the library instead of the playlist").Bool()

	coverCmd   = app.Command("cover", "Save a track's cover art")
	coverIndex = coverCmd.Flag("index", "Playlist index (-1 for the current track)").Default("-1").Int()
	coverOut   = coverCmd.Arg("file", "Output file").Required().String()

	saveCmd  = app.Command("save", "Save the playlist as M3U on the server")
	savePath = saveCmd.Arg("path", "Playlist path on the server").Required().String()

	watchCmd = app.Command("watch", "Print notifications until interrupted")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, client, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func execute(ctx context.Context, client *apiconnect.Client, command string) error {
	switch command {
	case playCmd.FullCommand():
		return printStatus(client.Play(ctx))
	case pauseCmd.FullCommand():
		return printStatus(client.Pause(ctx))
	case stopCmd.FullCommand():
		return printStatus(client.Stop(ctx))
	case nextCmd.FullCommand():
		return printStatus(client.Next(ctx))
	case previousCmd.FullCommand():
		return printStatus(client.Previous(ctx))
	case seekCmd.FullCommand():
		return printStatus(client.Seek(ctx, *seekPosition))
	case volumeCmd.FullCommand():
		return printStatus(client.SetVolume(ctx, *volumeLevel))
	case shuffleCmd.FullCommand():
		return printStatus(client.SetShuffle(ctx, *shuffleEnabled == "on"))
	case repeatCmd.FullCommand():
		return printStatus(client.SetRepeat(ctx, *repeatMode))
	case jumpCmd.FullCommand():
		return printStatus(client.JumpTo(ctx, *jumpIndex))
	case removeCmd.FullCommand():
		return printStatus(client.Remove(ctx, *removeIndex))
	case moveCmd.FullCommand():
		return printStatus(client.Move(ctx, *moveFrom, *moveTo))
	case loadCmd.FullCommand():
		return load(ctx, client)
	case listCmd.FullCommand():
		tracks, err := client.ListTracks(ctx)
		if err != nil {
			return err
		}
		printTracks(tracks, true)
		return nil
	case searchCmd.FullCommand():
		return search(ctx, client)
	case coverCmd.FullCommand():
		return saveCover(ctx, client)
	case saveCmd.FullCommand():
		if err := client.SavePlaylist(ctx, *savePath); err != nil {
			return err
		}
		fmt.Printf("Playlist saved to %s\n", *savePath)
		return nil
	case watchCmd.FullCommand():
		return watch(ctx, client)
	default:
		return printStatus(client.Status(ctx))
	}
}

func load(ctx context.Context, client *apiconnect.Client) error {
	result, err := client.Load(ctx, *loadPaths, *loadReplace)
	if result != nil {
		fmt.Printf("Added %d tracks\n", result.Added)
		for _, s := range result.Skipped {
			fmt.Printf("  skipped  %s: %s\n", s.Path, s.Error)
		}
		for _, r := range result.Rejected {
			fmt.Printf("  rejected %s [%s]\n", r.Path, r.Code)
		}
	}
	return err
}

func search(ctx context.Context, client *apiconnect.Client) error {
	query := strings.Join(*searchQuery, " ")
	var (
		tracks []apiconnect.TrackView
		err    error
	)
	if *searchLibrary {
		tracks, err = client.SearchLibrary(ctx, query)
	} else {
		tracks, err = client.Search(ctx, query)
	}
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("No matches")
		return nil
	}
	printTracks(tracks, !*searchLibrary)
	return nil
}

func saveCover(ctx context.Context, client *apiconnect.Client) error {
	cover, err := client.Cover(ctx, *coverIndex)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*coverOut), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*coverOut, cover.Data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Saved %s cover (%s, %d bytes) to %s\n", cover.Source, cover.MIMEType, len(cover.Data), *coverOut)
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	fmt.Println("Watching notifications. Press Ctrl+C to exit.")
	return client.Subscribe(ctx, func(n apiconnect.NotificationView) error {
		fmt.Printf("[%d] %-16s %s\n", n.SequenceNo, n.Type, describe(n.Status))
		if n.Message != "" {
			fmt.Printf("     %s\n", n.Message)
		}
		return nil
	})
}

func printStatus(status *apiconnect.StatusView, err error) error {
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"State", formatState(status.State)},
		{"Track", trackLabel(status.Track)},
		{"Position", fmt.Sprintf("%s / %s", formatDuration(status.Position()), formatDuration(time.Duration(status.DurationMs)*time.Millisecond))},
		{"Playlist", fmt.Sprintf("%d / %d tracks (%s)", status.Index+1, status.PlaylistLen, formatDuration(time.Duration(status.TotalDurationMs)*time.Millisecond))},
		{"Volume", status.Volume},
		{"Shuffle", status.Shuffle},
		{"Repeat", status.Repeat},
	})
	t.Render()
	return nil
}

func printTracks(tracks []apiconnect.TrackView, withIndex bool) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	if withIndex {
		t.AppendHeader(table.Row{"#", "Title", "Artist", "Album", "Duration"})
	} else {
		t.AppendHeader(table.Row{"Title", "Artist", "Album", "Duration", "Path"})
	}
	for _, tr := range tracks {
		if withIndex {
			t.AppendRow(table.Row{tr.Index, tr.Title, tr.Artist, tr.Album, formatDuration(tr.Duration())})
		} else {
			t.AppendRow(table.Row{tr.Title, tr.Artist, tr.Album, formatDuration(tr.Duration()), tr.Path})
		}
	}
	t.Render()
}

func describe(s apiconnect.StatusView) string {
	return fmt.Sprintf("%s %s (%s, vol %d)", formatState(s.State), trackLabel(s.Track), formatDuration(s.Position()), s.Volume)
}

func trackLabel(tr *apiconnect.TrackView) string {
	if tr == nil {
		return "-"
	}
	if tr.Artist == "" {
		return tr.Title
	}
	return fmt.Sprintf("%s - %s", tr.Artist, tr.Title)
}

func formatState(state string) string {
	switch state {
	case "playing":
		return "▶ Playing"
	case "paused":
		return "⏸ Paused"
	case "stopped":
		return "⏹ Stopped"
	default:
		return state
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
