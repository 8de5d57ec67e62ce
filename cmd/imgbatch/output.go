package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/progress"
	"github.com/aliskhannn/imgbatch/internal/quota"
	"github.com/aliskhannn/imgbatch/internal/session"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorText(msg string) string {
	return red("error: " + msg)
}

func stateText(s model.State) string {
	switch s {
	case model.StateCompleted:
		return green(string(s))
	case model.StateError:
		return red(string(s))
	case model.StateProcessing:
		return cyan(string(s))
	default:
		return yellow(string(s))
	}
}

// humanBytes formats n with a binary unit.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printItems(w io.Writer, items []model.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, gray("batch is empty"))
		return
	}

	for i, it := range items {
		line := fmt.Sprintf("%3d  %-10s  %s  %s",
			i+1, stateText(it.State), it.Name,
			gray(fmt.Sprintf("%dx%d %s", it.OriginalWidth, it.OriginalHeight, humanBytes(it.OriginalSize))))

		switch it.State {
		case model.StateCompleted:
			line += fmt.Sprintf("  -> %dx%d %s", it.ResultWidth, it.ResultHeight, humanBytes(it.ResultSize))
		case model.StateError:
			line += "  " + red(it.Error)
		}

		fmt.Fprintln(w, line)
	}
}

func printOptions(w io.Writer, o model.Options) {
	aspect := "keep aspect"
	if !o.KeepAspectRatio {
		aspect = "stretch"
	}

	fmt.Fprintf(w, "%s %dx%d (%s), %s, quality %.2f x compression %.2f = %.2f",
		bold("options:"), o.TargetWidth, o.TargetHeight, aspect, o.Format,
		o.Quality, o.Compression, o.EffectiveQuality())
	if o.Watermark != "" {
		fmt.Fprintf(w, ", watermark %q", o.Watermark)
	}
	fmt.Fprintln(w)
}

func printQuota(w io.Writer, actor model.Actor, q quota.Quota) {
	fmt.Fprintf(w, "%s %s (%s)\n", bold("account:"), actor.ID, actor.Kind)
	fmt.Fprintf(w, "%s %d of %d used today, %d left\n", bold("quota:"), q.UsedToday, q.DailyLimit, q.Remaining())
	if q.HasStorage() {
		fmt.Fprintf(w, "%s %s of %s used\n", bold("storage:"), humanBytes(q.StorageUsedBytes), humanBytes(q.StorageQuotaBytes))
	}
}

// progressPrinter renders one line per progress event.
func progressPrinter(w io.Writer) func(progress.Event) {
	return func(ev progress.Event) {
		if ev.Done {
			return
		}

		status := green("ok")
		detail := fmt.Sprintf("%dx%d %s", ev.Item.ResultWidth, ev.Item.ResultHeight, humanBytes(ev.Item.ResultSize))
		if ev.Item.State == model.StateError {
			status = red("failed")
			detail = ev.Item.Error
		}

		fmt.Fprintf(w, "[%*d/%d] %5.1f%%  eta %-6s %s %s %s\n",
			len(fmt.Sprint(ev.Total)), ev.Completed, ev.Total, ev.Percent,
			ev.Remaining.Round(time.Second), ev.Item.Name, status, gray(detail))
	}
}

func printResult(w io.Writer, res session.Result) {
	sum := res.Summary
	if sum.Items == 0 {
		fmt.Fprintln(w, gray("nothing to process"))
		return
	}

	fmt.Fprintf(w, "%s %d succeeded, %d failed", bold("done:"), sum.Succeeded, sum.Failed)
	if sum.Cancelled {
		fmt.Fprintf(w, ", %s", yellow(fmt.Sprintf("%d cancelled", sum.Pending)))
	}
	fmt.Fprintf(w, " in %s, %s written\n", sum.Duration.Round(time.Millisecond), humanBytes(sum.Bytes))

	for _, u := range res.Uploads {
		if u.Success {
			fmt.Fprintf(w, "  %s %s\n", green("saved"), u.RemoteKey)
		} else {
			fmt.Fprintf(w, "  %s %s: %s\n", red("not saved"), u.ItemID, u.Error)
		}
	}
}
