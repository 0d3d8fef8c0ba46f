// Package seeder generates synthetic terminal pushes against a
// running punchd instance. Used for load checks and for exercising
// the full ingestion path without hardware on the bench.
package seeder

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Config controls a seeding run.
type Config struct {
	BaseURL  string        // punchd base URL, e.g. http://localhost:8081
	Count    int           // total pushes to send
	Interval time.Duration // pause between pushes
	Devices  int           // distinct fake device serials
	Users    int           // distinct fake user PINs
}

// Result summarizes a seeding run.
type Result struct {
	Sent   int
	Failed int
}

// Runner sends the generated pushes.
type Runner struct {
	cfg     Config
	client  *http.Client
	serials []string
	pins    []string
}

// NewRunner seeds the fake-data generator and builds the device/user
// pools reused across the run, so the journal ends up with realistic
// repeat punches rather than one-off identities.
func NewRunner(cfg Config) *Runner {
	gofakeit.Seed(time.Now().UnixNano())

	if cfg.Devices <= 0 {
		cfg.Devices = 3
	}
	if cfg.Users <= 0 {
		cfg.Users = 20
	}

	serials := make([]string, cfg.Devices)
	for i := range serials {
		serials[i] = strings.ToUpper(gofakeit.LetterN(4)) + gofakeit.DigitN(8)
	}
	pins := make([]string, cfg.Users)
	for i := range pins {
		pins[i] = fmt.Sprintf("%d", gofakeit.Number(1000, 9999))
	}

	return &Runner{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		serials: serials,
		pins:    pins,
	}
}

// Run sends cfg.Count pushes, mixing the three wire encodings.
func (r *Runner) Run() Result {
	var res Result
	for i := 0; i < r.cfg.Count; i++ {
		var err error
		switch rand.Intn(3) {
		case 0:
			err = r.sendExtended()
		case 1:
			err = r.sendShort()
		default:
			err = r.sendRtlog()
		}
		if err != nil {
			res.Failed++
		} else {
			res.Sent++
		}
		if r.cfg.Interval > 0 && i < r.cfg.Count-1 {
			time.Sleep(r.cfg.Interval)
		}
	}
	return res
}

// sendExtended POSTs a tab-separated record via the form-body marker.
func (r *Runner) sendExtended() error {
	line := fmt.Sprintf("%s\t%s\t%d\t%d\t%d",
		r.pin(), r.punchTime(), gofakeit.Number(0, 1), gofakeit.Number(0, 5), gofakeit.Number(0, 1))
	body := "ATTLOG=" + line
	return r.post("/iclock/cdata?SN="+r.serial(), body)
}

// sendShort POSTs a comma-separated record as a table=ATTLOG body.
func (r *Runner) sendShort() error {
	line := fmt.Sprintf("%s,%s,%d,%d",
		r.pin(), r.punchTime(), gofakeit.Number(0, 5), gofakeit.Number(0, 1))
	// A trailing newline gives the body the line structure the bulk
	// recognizer requires for rule 2.
	return r.post("/iclock/cdata?SN="+r.serial()+"&table=ATTLOG", line+"\n")
}

// sendRtlog GETs a single punch through query parameters.
func (r *Runner) sendRtlog() error {
	params := url.Values{}
	params.Set("SN", r.serial())
	params.Set("PIN", r.pin())
	params.Set("Time", r.punchTime())
	params.Set("Status", fmt.Sprintf("%d", gofakeit.Number(0, 5)))

	resp, err := r.client.Get(r.cfg.BaseURL + "/iclock/rtlog?" + params.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rtlog push: status %d", resp.StatusCode)
	}
	return nil
}

func (r *Runner) post(path, body string) error {
	resp, err := r.client.Post(r.cfg.BaseURL+path, "text/plain", strings.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push: status %d", resp.StatusCode)
	}
	return nil
}

func (r *Runner) serial() string {
	return r.serials[rand.Intn(len(r.serials))]
}

func (r *Runner) pin() string {
	return r.pins[rand.Intn(len(r.pins))]
}

// punchTime spreads punches over the last day.
func (r *Runner) punchTime() string {
	t := time.Now().Add(-time.Duration(rand.Intn(86400)) * time.Second)
	return t.Format("2006-01-02 15:04:05")
}
