package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/client"
	"rollcall/internal/config"
	"rollcall/internal/fingerprint"
	"rollcall/internal/proximity"
)

// Device simulator: runs a fake teacher device and a handful of fake student
// devices against a running API, sharing a scripted radio environment. Useful
// for exercising the whole protocol end to end without real hardware.
func main() {
	var (
		baseURL    = flag.String("api", "http://localhost:8081", "rollcall API base URL")
		department = flag.String("dept", "CSE", "department")
		subject    = flag.String("subject", "Data Structures", "subject")
		className  = flag.String("class", "3rd Year", "class name")
		year       = flag.String("year", "2026", "academic year")
		students   = flag.Int("students", 3, "number of simulated students")
	)
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Everyone in the simulated room sees the same networks.
	room := []fingerprint.Observation{
		{SSID: "Lab-AP", BSSID: "AA:BB:CC:00:11:22", SignalLevel: -40},
		{SSID: "Lab-AP-5G", BSSID: "AA:BB:CC:00:11:23", SignalLevel: -48},
		{SSID: "Library", BSSID: "DD:EE:FF:00:11:22", SignalLevel: -70},
	}
	bus := proximity.NewBus()

	if err := runTeacher(ctx, cfg, *baseURL, *department, *subject, *className, *year, room, bus); err != nil {
		log.Fatalf("teacher device failed: %v", err)
	}

	for i := 0; i < *students; i++ {
		studentID := "sim-student-" + string(rune('A'+i))
		go runStudent(ctx, cfg, *baseURL, *department, *year, studentID, room, bus)
	}

	<-ctx.Done()
	log.Println("simulator stopped")
}

func runTeacher(ctx context.Context, cfg config.App, baseURL, department, subject, className, year string, room []fingerprint.Observation, bus *proximity.Bus) error {
	api := client.New(baseURL, "")
	if _, err := api.Register(ctx, "sim-teacher", "teacher"); err != nil {
		return err
	}

	collector := fingerprint.NewScripted(room)
	scan, err := collector.Collect(ctx, cfg.MaxFingerprintAPs)
	if err != nil {
		return err
	}

	advertiser := proximity.NewBusAdvertiser(bus)
	token, err := advertiser.Start(ctx)
	if err != nil {
		return err
	}

	generated, err := api.Generate(ctx, client.GenerateRequest{
		Department:      department,
		Subject:         subject,
		ClassName:       className,
		AcademicYear:    year,
		WifiFingerprint: scan,
		BluetoothUUID:   token,
	})
	if err != nil {
		advertiser.Stop()
		return err
	}
	log.Printf("session open: code %s expires at %s", generated.Code, time.UnixMilli(generated.ExpiresAt).Format(time.RFC3339))

	// Stop broadcasting when the code's window ends.
	go func() {
		defer advertiser.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(time.Until(time.UnixMilli(generated.ExpiresAt))):
			log.Println("code expired, broadcast stopped")
		}
	}()
	return nil
}

func runStudent(ctx context.Context, cfg config.App, baseURL, department, year, studentID string, room []fingerprint.Observation, bus *proximity.Bus) {
	api := client.New(baseURL, "")
	if _, err := api.Register(ctx, studentID, "student"); err != nil {
		log.Printf("%s register failed: %v", studentID, err)
		return
	}

	collector := fingerprint.NewScripted(room)
	scanner := proximity.NewBusScanner(bus)

	poller := client.NewPoller(api, department, year, cfg.PollInterval)
	poller.OnActive = func(latest client.LatestCode) {
		log.Printf("%s sees active code for %s", studentID, latest.Subject)

		scan, err := collector.Collect(ctx, cfg.MaxFingerprintAPs)
		if err != nil {
			log.Printf("%s scan failed: %v", studentID, err)
			return
		}

		req := client.SubmitRequest{
			Department:      department,
			Code:            latest.Code,
			WifiFingerprint: scan,
		}

		// Corroborate over BLE too when the teacher's token is on air.
		scanCtx, scanCancel := context.WithTimeout(ctx, cfg.ScanWindow)
		heard, scanErr := scanner.ScanFor(scanCtx, latest.BluetoothUUID)
		scanCancel()
		if scanErr != nil {
			log.Printf("%s ble scan unavailable: %v", studentID, scanErr)
		} else if heard {
			req.BluetoothUUID = latest.BluetoothUUID
		}

		result, err := api.Submit(ctx, req)
		if err != nil {
			// a mutation that may or may not have landed; tell the operator
			log.Printf("%s submit transport error: %v", studentID, err)
			return
		}
		log.Printf("%s submit: success=%v reason=%s %s", studentID, result.Success, result.Reason, result.Message)
	}
	poller.OnInactive = func() {
		log.Printf("%s: session ended", studentID)
	}

	poller.Run(ctx)
}
