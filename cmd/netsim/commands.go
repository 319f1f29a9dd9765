package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcalzada-xor/netsim/internal/config"
	"github.com/lcalzada-xor/netsim/internal/core/domain"
	"github.com/lcalzada-xor/netsim/internal/discovery"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// baseURL locates the daemon's control surface via the discovery file.
func baseURL(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("scene-dir")
	if dir == "" {
		dir = config.Load().SceneDir
	}
	info, err := discovery.Read(filepath.Join(dir, discovery.DefaultFileName))
	if err != nil {
		return "", fmt.Errorf("no running simulator found: %w", err)
	}
	return fmt.Sprintf("http://127.0.0.1:%d", info.WebPort), nil
}

func call(cmd *cobra.Command, method, path string, body any) ([]byte, error) {
	base, err := baseURL(cmd)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(out))
	}
	return out, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the running simulator's version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := call(cmd, http.MethodGet, "/version", nil)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices and their chips",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := call(cmd, http.MethodGet, "/v1/devices", nil)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, out, "", "  "); err != nil {
				fmt.Print(string(out))
				return nil
			}
			pretty.WriteTo(os.Stdout)
			return nil
		},
	}
}

func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <device-name> <x> <y> <z>",
		Short: "Set a device's position",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos := domain.Position{}
			for i, field := range []*float32{&pos.X, &pos.Y, &pos.Z} {
				v, err := strconv.ParseFloat(args[i+1], 32)
				if err != nil {
					return fmt.Errorf("coordinate %q: %w", args[i+1], err)
				}
				*field = float32(v)
			}
			patch := domain.DevicePatch{Name: args[0], Position: &pos}
			_, err := call(cmd, http.MethodPatch, "/v1/devices", patch)
			return err
		},
	}
	return cmd
}

func newRadioCmd() *cobra.Command {
	var chipID uint32
	cmd := &cobra.Command{
		Use:   "radio <device-name> <ble|classic|wifi> <on|off>",
		Short: "Toggle a radio on a device's chip",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := domain.RadioStateOn
			switch args[2] {
			case "on":
			case "off":
				state = domain.RadioStateOff
			default:
				return fmt.Errorf("state %q must be on or off", args[2])
			}

			cp := domain.ChipPatch{ID: domain.ChipID(chipID)}
			switch args[1] {
			case "ble":
				cp.Kind = domain.ChipKindBluetooth
				cp.Bluetooth = &domain.BluetoothPatch{LowEnergy: &domain.RadioPatch{State: state}}
			case "classic":
				cp.Kind = domain.ChipKindBluetooth
				cp.Bluetooth = &domain.BluetoothPatch{Classic: &domain.RadioPatch{State: state}}
			case "wifi":
				cp.Kind = domain.ChipKindWifi
				cp.Radio = &domain.RadioPatch{State: state}
			default:
				return fmt.Errorf("radio %q must be ble, classic or wifi", args[1])
			}

			patch := domain.DevicePatch{Name: args[0], Chips: []domain.ChipPatch{cp}}
			_, err := call(cmd, http.MethodPatch, "/v1/devices", patch)
			return err
		},
	}
	cmd.Flags().Uint32Var(&chipID, "chip-id", 0, "Target a specific chip instead of the first of its kind")
	return cmd
}

func newCaptureCmd() *cobra.Command {
	var chipID uint32
	cmd := &cobra.Command{
		Use:   "capture <device-name> <on|off>",
		Short: "Toggle packet capture for a device's chips",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[1] != "on" && args[1] != "off" {
				return fmt.Errorf("state %q must be on or off", args[1])
			}
			body := map[string]any{
				"deviceName": args[0],
				"capture":    args[1] == "on",
			}
			if chipID != 0 {
				body["chipId"] = chipID
			}
			_, err := call(cmd, http.MethodPut, "/v1/capture", body)
			return err
		},
	}
	cmd.Flags().Uint32Var(&chipID, "chip-id", 0, "Target a single chip")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the whole scene",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := call(cmd, http.MethodPut, "/v1/devices/reset", nil)
			return err
		},
	}
}
