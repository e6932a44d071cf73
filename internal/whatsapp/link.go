package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// syncTimeout bounds the wait for Connected after a scan is accepted.
const syncTimeout = 30 * time.Second

// LinkDevice pairs a new device offline: it renders the QR code on w and
// waits for the scan and initial sync. Stale devices are removed first.
func LinkDevice(ctx context.Context, dbPath string, w io.Writer) error {
	db, container, err := openStore(ctx, dbPath, &waLogger{module: "store"})
	if err != nil {
		return err
	}
	defer db.Close()

	// A stale device would otherwise be picked up by GetFirstDevice and
	// fail with 401 on connect.
	oldDevices, err := container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list existing devices: %w", err)
	}
	for _, d := range oldDevices {
		fmt.Fprintf(w, "Removing stale device: %s\n", deviceName(d.ID))
		_ = d.Delete(ctx)
	}

	client := whatsmeow.NewClient(container.NewDevice(), &waLogger{module: "client"})

	// The QR "success" event only means the scan was accepted; the client
	// still has to finish initial sync before it may disconnect.
	connectedCh := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connectedCh <- struct{}{}:
			default:
			}
		}
	})

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Disconnect()

	for item := range qrChan {
		switch item.Event {
		case "code":
			renderQR(w, item.Code)
		case "success":
			fmt.Fprintln(w, "\nScan accepted, completing initial sync...")
			select {
			case <-connectedCh:
			case <-time.After(syncTimeout):
				return errors.New("timed out waiting for initial sync, try again")
			case <-ctx.Done():
				return ctx.Err()
			}
			fmt.Fprintf(w, "Paired successfully! JID: %s\n", client.Store.ID)
			fmt.Fprintln(w, "You can now start the session host with 'wamcp host'.")
			return nil
		case "timeout":
			return errors.New("QR code expired, run the command again")
		default:
			return fmt.Errorf("pairing failed: %s", item.Event)
		}
	}
	return errors.New("QR channel closed unexpectedly")
}

// UnlinkDevice removes every stored device, requiring re-pairing.
func UnlinkDevice(ctx context.Context, dbPath string, w io.Writer) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no WhatsApp session found (no %s)", dbPath)
	}

	db, container, err := openStore(ctx, dbPath, &waLogger{module: "store"})
	if err != nil {
		return err
	}
	defer db.Close()

	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return errors.New("no paired devices found")
	}

	for _, device := range devices {
		name := deviceName(device.ID)
		if err := device.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete device %s: %w", name, err)
		}
		fmt.Fprintf(w, "Removed device: %s\n", name)
	}

	fmt.Fprintln(w, "WhatsApp session cleared. Run 'wamcp whatsapp link' to re-pair.")
	return nil
}

// DeviceStatus prints the pairing status of the device store.
func DeviceStatus(ctx context.Context, dbPath string, w io.Writer) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintln(w, "Status: Not paired (no session database)")
		return nil
	}

	db, container, err := openStore(ctx, dbPath, waLog.Noop)
	if err != nil {
		return err
	}
	defer db.Close()

	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "Status: Not paired")
		fmt.Fprintln(w, "Run 'wamcp whatsapp link' to pair a device.")
		return nil
	}

	for _, device := range devices {
		fmt.Fprintln(w, "Status: Paired")
		fmt.Fprintf(w, "  JID: %s\n", deviceName(device.ID))
	}
	return nil
}

func deviceName(id *types.JID) string {
	if id == nil {
		return "(unknown)"
	}
	return id.String()
}
