package ipc

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	modeLineRe  = regexp.MustCompile(`^(\d+)x(\d+)\s+px,\s+([0-9.]+)\s+Hz(?:\s+\((.*)\))?$`)
	sizeRe      = regexp.MustCompile(`^(\d+)x(\d+)\s*mm$`)
	positionRe  = regexp.MustCompile(`^(-?\d+)\s*,\s*(-?\d+)$`)
	headerRe    = regexp.MustCompile(`^(\S+)(?:\s+"(.*)")?\s*$`)
	keyValueSep = ":"
)

// parseText parses the human-readable wlr-randr listing into raw records.
// Lines it does not understand are ignored so a single odd field cannot
// abort the whole listing.
func parseText(data []byte) ([]rawOutput, error) {
	var (
		outputs   []rawOutput
		cur       *rawOutput
		inModes   bool
		keyIndent int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		body := strings.TrimSpace(line)

		if indent == 0 {
			m := headerRe.FindStringSubmatch(body)
			if m == nil {
				return nil, fmt.Errorf("line %d: unexpected output header %q", lineNo, body)
			}
			outputs = append(outputs, rawOutput{Name: m[1]})
			cur = &outputs[len(outputs)-1]
			if m[2] != "" {
				desc := m[2]
				cur.Description = &desc
			}
			inModes = false
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: field before any output header", lineNo)
		}
		if inModes && indent > keyIndent {
			if mode, ok := parseModeLine(body); ok {
				cur.Modes = append(cur.Modes, mode)
			} else {
				// Keep the slot so conversion can report the unreadable mode.
				cur.Modes = append(cur.Modes, rawMode{})
			}
			continue
		}
		inModes = false
		key, value, found := strings.Cut(body, keyValueSep)
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "make":
			cur.Make = &value
		case "model":
			cur.Model = &value
		case "serial":
			cur.Serial = &value
		case "physical size":
			if m := sizeRe.FindStringSubmatch(value); m != nil {
				w, _ := strconv.Atoi(m[1])
				h, _ := strconv.Atoi(m[2])
				cur.PhysicalSize = &rawSize{Width: w, Height: h}
			}
		case "enabled":
			enabled := strings.EqualFold(value, "yes")
			cur.Enabled = &enabled
		case "modes":
			inModes = true
			keyIndent = indent
			if cur.Modes == nil {
				cur.Modes = []rawMode{}
			}
		case "position":
			if m := positionRe.FindStringSubmatch(value); m != nil {
				x, _ := strconv.Atoi(m[1])
				y, _ := strconv.Atoi(m[2])
				cur.Position = &rawPosition{X: x, Y: y}
			}
		case "transform":
			cur.Transform = &value
		case "scale":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				cur.Scale = &f
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	return outputs, nil
}

func parseModeLine(body string) (rawMode, bool) {
	m := modeLineRe.FindStringSubmatch(body)
	if m == nil {
		return rawMode{}, false
	}
	w, errW := strconv.Atoi(m[1])
	h, errH := strconv.Atoi(m[2])
	hz, errR := strconv.ParseFloat(m[3], 64)
	if errW != nil || errH != nil || errR != nil {
		return rawMode{}, false
	}
	mode := rawMode{Width: &w, Height: &h, Refresh: &hz}
	for _, flag := range strings.Split(m[4], ",") {
		switch strings.TrimSpace(flag) {
		case "preferred":
			mode.Preferred = true
		case "current":
			mode.Current = true
		}
	}
	return mode, true
}
