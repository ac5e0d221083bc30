package core

import (
	"sort"
	"strings"
)

func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	reg := m.cmds
	aliasMap := m.alias
	m.mu.RUnlock()

	// No argument: list every command.
	if len(args) == 0 {
		names := make([]string, 0, len(reg))
		for name := range reg {
			names = append(names, name)
		}
		sort.Strings(names)

		lines := []string{"Commands (use /help <cmd>):"}
		for _, name := range names {
			if desc := reg[name].Description; desc != "" {
				lines = append(lines, "- /"+name+" — "+desc)
			} else {
				lines = append(lines, "- /"+name)
			}
		}
		return strings.Join(lines, "\n")
	}

	name := strings.TrimPrefix(strings.TrimSpace(args[0]), "/")
	if canon, ok := aliasMap[name]; ok {
		name = canon
	}
	cmd, ok := reg[name]
	if !ok {
		return "command not found. try /help"
	}

	lines := []string{"/" + cmd.Name, cmd.Description}
	if cmd.Usage != "" {
		lines = append(lines, "Usage: "+cmd.Usage)
	}
	if len(cmd.Aliases) > 0 {
		lines = append(lines, "Aliases: /"+strings.Join(cmd.Aliases, ", /"))
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
