package agent

import (
	"fmt"
	"os"
	"runtime"
)

const toolGuidance = "IMPORTANT: Only use the shell tool when you need to interact with the system " +
	"(e.g., list files, run builds, check status, execute programs). For knowledge questions, " +
	"explanations, or conversations, respond directly WITHOUT using any tools."

// ShellInfo names the host OS and the shell commands run under.
type ShellInfo struct {
	OS    string
	Shell string
}

// DetectShell inspects the running platform.
func DetectShell() ShellInfo {
	return detectShell(runtime.GOOS, os.Getenv)
}

func detectShell(goos string, getenv func(string) string) ShellInfo {
	switch goos {
	case "windows":
		if getenv("PSModulePath") != "" {
			return ShellInfo{OS: "Windows", Shell: "PowerShell"}
		}
		return ShellInfo{OS: "Windows", Shell: "cmd.exe"}
	case "darwin":
		return ShellInfo{OS: "macOS", Shell: orDefault(getenv("SHELL"), "zsh")}
	}
	return ShellInfo{OS: "Linux", Shell: orDefault(getenv("SHELL"), "bash")}
}

// SystemContext is the preamble sent ahead of every agent run.
func SystemContext() string {
	return DetectShell().context()
}

func (s ShellInfo) context() string {
	if s.OS == "Windows" {
		return fmt.Sprintf("%s\n\nEnvironment: %s, Shell: %s.\n"+
			"- Use Windows commands (dir, cd, type, copy, del, etc.)\n"+
			"- Do NOT use Unix commands (ls, pwd, cat, cp, rm, etc.)\n"+
			"- For PowerShell, you can also use cmdlets like Get-ChildItem, Get-Location, etc.",
			toolGuidance, s.OS, s.Shell)
	}
	return fmt.Sprintf("%s\n\nEnvironment: %s, Shell: %s. Use appropriate commands for this shell.",
		toolGuidance, s.OS, s.Shell)
}

// mergeSystem puts the caller's system message after the context.
func mergeSystem(context, caller string) string {
	switch {
	case caller == "":
		return context
	case context == "":
		return caller
	}
	return context + "\n\n" + caller
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
