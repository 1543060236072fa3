// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusRow is one line of a status table.
type StatusRow struct {
	Name   string
	State  string
	Icon   Icon
	Detail string
}

// StatusTable prints rows as an aligned table under title.
//
// Machine level prints tab-separated "icon name state detail" lines with
// no header.
func (c *Console) StatusTable(title string, rows []StatusRow) {
	if c.level == PersonalityMachine {
		for _, r := range rows {
			c.printf(c.out, "%s\t%s\t%s\t%s\n", r.Icon, r.Name, r.State, r.Detail)
		}
		return
	}

	nameWidth, stateWidth := len("SERVICE"), len("STATE")
	for _, r := range rows {
		nameWidth = max(nameWidth, lipgloss.Width(r.Name))
		stateWidth = max(stateWidth, lipgloss.Width(r.State))
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(Styles.Title.Render(title) + "\n")
	}
	b.WriteString("  " + Styles.TableHeader.Render(pad("SERVICE", nameWidth)+"  "+pad("STATE", stateWidth)+"  DETAIL") + "\n")
	for _, r := range rows {
		detail := ""
		if r.Detail != "" {
			detail = Styles.Muted.Render(r.Detail)
		}
		b.WriteString(r.Icon.Render() + " " + pad(r.Name, nameWidth) + "  " + pad(r.State, stateWidth) + "  " + detail + "\n")
	}
	c.printf(c.out, "%s", b.String())
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
