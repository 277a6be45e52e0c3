package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "dev.yogabot.serve"
	systemdUnit  = "yogabot.service"
)

// serviceSpec is what the generated unit files run.
type serviceSpec struct {
	Label    string
	Exec     string
	Config   string
	EnvFiles []string
	LogDir   string
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install or remove yogabot serve as a user service (launchd/systemd)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Write a launchd agent or systemd user unit that runs yogabot serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			svc := serviceSpec{
				Label:    launchdLabel,
				Exec:     execPath,
				Config:   absPath(resolveConfigPath()),
				EnvFiles: existingEnvFiles(envFiles),
				LogDir:   filepath.Join(home, ".yogabot", "logs"),
			}
			path, hint, err := installService(runtime.GOOS, home, svc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service installed: %s\n%s", path, hint)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the yogabot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, err := servicePath(runtime.GOOS, home)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service uninstalled: %s\n", path)
			return nil
		},
	})
	return cmd
}

func servicePath(goos, home string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

// installService renders and writes the unit for goos, returning its path
// and the commands that start it.
func installService(goos, home string, svc serviceSpec) (string, string, error) {
	path, err := servicePath(goos, home)
	if err != nil {
		return "", "", err
	}
	tmpl, hint := systemdTemplate,
		"To start:  systemctl --user start yogabot\nTo enable: systemctl --user enable yogabot\nTo stop:   systemctl --user stop yogabot\n"
	if goos == "darwin" {
		tmpl, hint = launchdTemplate, fmt.Sprintf("To start: launchctl load %s\nTo stop:  launchctl unload %s\n", path, path)
		if err := os.MkdirAll(svc.LogDir, 0o755); err != nil {
			return "", "", err
		}
	}

	unit, err := renderService(tmpl, svc)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(path, unit, 0o644); err != nil {
		return "", "", err
	}
	return path, hint, nil
}

func renderService(tmpl string, svc serviceSpec) ([]byte, error) {
	t, err := template.New("unit").Parse(tmpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, svc); err != nil {
		return nil, fmt.Errorf("render service: %w", err)
	}
	return buf.Bytes(), nil
}

func existingEnvFiles(files []string) []string {
	var out []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			out = append(out, absPath(f))
		}
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.Config}}</string>
{{- range .EnvFiles}}
        <string>--env-file</string>
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogDir}}/yogabot.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/yogabot-error.log</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=yogabot chat service
After=network-online.target

[Service]
Type=simple
{{- range .EnvFiles}}
EnvironmentFile={{.}}
{{- end}}
ExecStart={{.Exec}} serve --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
