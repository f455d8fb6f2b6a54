package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/driver"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/matcher"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// safeBandFraction is the top/bottom screen fraction outside which a
// match triggers one corrective scroll before its coordinates are used.
const safeBandFraction = 0.1

// TapByScreenCoverageFromSubString searches the whole screen for an
// element whose text contains sub and taps its center count times.
// Polls until timeoutMs; when scrollIfNeeded is set, keeps scrolling
// down between polls until the page source stops changing (content end)
// or a match appears. Returns false on timeout, which is a boolean
// failure signal, not an error.
func (e *Engine) TapByScreenCoverageFromSubString(index int, sub string, count, durationMs, scrollDist, timeoutMs int, scrollIfNeeded bool) (bool, error) {
	if sub == "" {
		return false, core.ErrInvalidArgument.WithMessage("substring must not be empty")
	}
	if count < 0 || durationMs < 0 || timeoutMs < 0 {
		return false, core.ErrInvalidArgument.WithMessage(
			"tap count, duration and timeout must be non-negative")
	}
	if scrollDist <= 0 {
		return false, core.ErrInvalidArgument.WithMessage("scroll distance %d must be positive", scrollDist)
	}
	conn, _, err := e.session(index)
	if err != nil {
		return false, err
	}
	width, height, err := conn.WindowSize()
	if err != nil {
		return false, fmt.Errorf("substring search %q on device %d: %w", sub, index, err)
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	lastSource := ""
	for time.Now().Before(deadline) {
		raw, err := conn.Source()
		if err != nil {
			// Transport hiccups inside the scroll loop count as "not
			// yet found"; the deadline bounds the retries.
			e.log.Debug("page source fetch failed, retrying", zap.Error(err))
			time.Sleep(e.pollInterval)
			continue
		}
		snap, err := snapshot.Parse(raw)
		if err != nil {
			return false, fmt.Errorf("substring search %q on device %d: %w", sub, index, err)
		}
		ev := geometry.ForPlatform(snap.Platform())

		if cand, ok := matcher.MatchByText(snap, ev, sub); ok {
			cand, ok = e.nudgeIntoSafeBand(conn, sub, cand, width, height, scrollDist, scrollIfNeeded)
			if !ok {
				// The match vanished after the corrective scroll; poll
				// again on the regular interval.
				time.Sleep(e.pollInterval)
				continue
			}
			x, y := cand.Center()
			if !withinScreen(x, y, width, height) {
				return false, fmt.Errorf(
					"substring search %q on device %d: coordinates (%d,%d) outside screen %dx%d",
					sub, index, x, y, width, height)
			}
			for i := 0; i < count; i++ {
				if err := conn.Tap(x, y); err != nil {
					return false, fmt.Errorf("substring search %q on device %d: %w", sub, index, err)
				}
				if i < count-1 {
					sleepMs(durationMs)
				}
			}
			return true, nil
		}

		if scrollIfNeeded {
			if raw == lastSource {
				// Content stopped changing: end of scrollable area.
				break
			}
			lastSource = raw
			e.scrollDown(conn, width, height, scrollDist)
		}
		time.Sleep(e.pollInterval)
	}

	e.log.Warn("no element found matching substring before timeout",
		zap.String("substring", sub),
		zap.Int("device", index),
		zap.Int("timeoutMs", timeoutMs))
	return false, nil
}

// CheckTextPresence reports whether any element whose text contains sub
// shows up with usable coordinates before the timeout. A match outside
// the vertical safe band is scrolled toward once and re-matched before
// being accepted.
func (e *Engine) CheckTextPresence(index int, sub string, scrollDist, timeoutMs int) (bool, error) {
	if sub == "" {
		return false, core.ErrInvalidArgument.WithMessage("substring must not be empty")
	}
	if scrollDist <= 0 {
		return false, core.ErrInvalidArgument.WithMessage("scroll distance %d must be positive", scrollDist)
	}
	if timeoutMs < 0 {
		return false, core.ErrInvalidArgument.WithMessage("timeout %dms must be non-negative", timeoutMs)
	}
	conn, _, err := e.session(index)
	if err != nil {
		return false, err
	}
	width, height, err := conn.WindowSize()
	if err != nil {
		return false, fmt.Errorf("check text presence %q on device %d: %w", sub, index, err)
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		snap, err := e.fetchSnapshot(conn)
		if err != nil {
			if errors.Is(err, core.ErrMalformedSnapshot) {
				return false, fmt.Errorf("check text presence %q on device %d: %w", sub, index, err)
			}
			e.log.Debug("page source fetch failed, retrying", zap.Error(err))
			time.Sleep(e.pollInterval)
			continue
		}
		ev := geometry.ForPlatform(snap.Platform())

		if cand, ok := matcher.MatchByText(snap, ev, sub); ok {
			if cand, ok = e.nudgeIntoSafeBand(conn, sub, cand, width, height, scrollDist, true); ok {
				if x, y := cand.Center(); withinScreen(x, y, width, height) {
					return true, nil
				}
			}
		}
		time.Sleep(e.pollInterval)
	}

	e.log.Warn("text not present before timeout",
		zap.String("substring", sub),
		zap.Int("device", index),
		zap.Int("timeoutMs", timeoutMs))
	return false, nil
}

// nudgeIntoSafeBand issues one corrective scroll when the match sits in
// the top or bottom tenth of the screen, then re-matches against a
// fresh snapshot. ok=false means the element vanished after scrolling
// and the caller should poll again.
func (e *Engine) nudgeIntoSafeBand(conn driver.Conn, sub string, cand matcher.Candidate, width, height, scrollDist int, allowScroll bool) (matcher.Candidate, bool) {
	if !allowScroll {
		return cand, true
	}
	_, y := cand.Center()
	top := int(float64(height) * safeBandFraction)
	bottom := height - top

	scrolled := false
	centerX := width / 2
	switch {
	case y < top:
		startY := int(float64(height) * 0.3)
		_ = conn.Swipe(centerX, startY, centerX, startY+scrollDist, swipeDurationMs)
		scrolled = true
	case y > bottom:
		startY := int(float64(height) * 0.7)
		_ = conn.Swipe(centerX, startY, centerX, startY-scrollDist, swipeDurationMs)
		scrolled = true
	}
	if !scrolled {
		return cand, true
	}

	snap, err := e.fetchSnapshot(conn)
	if err != nil {
		return matcher.Candidate{}, false
	}
	ev := geometry.ForPlatform(snap.Platform())
	return matcher.MatchByText(snap, ev, sub)
}

func (e *Engine) scrollDown(conn driver.Conn, width, height, scrollDist int) {
	centerX := width / 2
	startY := int(float64(height) * 0.7)
	_ = conn.Swipe(centerX, startY, centerX, startY-scrollDist, swipeDurationMs)
}
