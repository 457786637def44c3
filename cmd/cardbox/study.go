package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ogorman/cardbox/internal/domain"
	"github.com/ogorman/cardbox/internal/session"
)

// runStudy drives an interactive study sitting on the terminal.
func runStudy(ctx context.Context, sess *session.Session, mode session.Mode, maxCards int) error {
	return study(ctx, sess, mode, maxCards, os.Stdin, os.Stdout)
}

func study(ctx context.Context, sess *session.Session, mode session.Mode, maxCards int, in io.Reader, out io.Writer) error {
	if _, err := sess.Start(ctx, mode, maxCards); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		card, ok := sess.Current()
		if !ok {
			break
		}

		fmt.Fprintf(out, "\nQ: %s\n", card.Question)
		fmt.Fprint(out, "(enter to reveal) ")
		asked := time.Now()
		if !scanner.Scan() {
			break
		}
		fmt.Fprintf(out, "A: %s\n", card.Answer)
		if card.Context != "" {
			fmt.Fprintf(out, "C: %s\n", card.Context)
		}
		if options, err := sess.PreviewCurrent(ctx); err == nil {
			fmt.Fprintf(out, "next: again %dd  hard %dd  good %dd  easy %dd\n",
				options[domain.Again].IntervalDays,
				options[domain.Hard].IntervalDays,
				options[domain.Good].IntervalDays,
				options[domain.Easy].IntervalDays)
		}

		rating, quit := promptRating(scanner, out)
		if quit {
			break
		}
		if err := sess.ReviewCard(ctx, rating, time.Since(asked).Seconds()); err != nil {
			return err
		}
		if !sess.Advance() {
			break
		}
	}

	fmt.Fprintln(out, "\nsession complete")
	return sess.End(ctx)
}

// promptRating reads grades until one parses. quit is reported on "q" or
// exhausted input.
func promptRating(scanner *bufio.Scanner, out io.Writer) (domain.Rating, bool) {
	for {
		fmt.Fprint(out, "1=again 2=hard 3=good 4=easy q=quit: ")
		if !scanner.Scan() {
			return domain.Manual, true
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "q" {
			return domain.Manual, true
		}
		if r, ok := parseRating(text); ok {
			return r, false
		}
		fmt.Fprintln(out, "unknown rating")
	}
}

func parseRating(s string) (domain.Rating, bool) {
	switch s {
	case "1":
		return domain.Again, true
	case "2":
		return domain.Hard, true
	case "3":
		return domain.Good, true
	case "4":
		return domain.Easy, true
	}
	return domain.Manual, false
}
