// Command inbox_generator produces synthetic SMS inbox CSV files for
// manual testing of the sync pipeline. The output mixes transactional
// messages in common Indian bank formats with promotional noise, OTPs,
// duplicate deliveries, and recurring subscription charges.
//
// Usage:
//
//	go run ./testdata/generators -output inbox.csv -count 200 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"
)

type merchant struct {
	name     string
	minPaise int64
	maxPaise int64
}

var merchants = []merchant{
	{"swiggy", 15000, 90000},
	{"zomato", 20000, 80000},
	{"uber", 8000, 45000},
	{"amazon", 30000, 500000},
	{"bigbasket", 40000, 250000},
	{"airtel", 19900, 99900},
	{"apollo pharmacy", 12000, 150000},
}

var subscriptions = []merchant{
	{"netflix", 64900, 64900},
	{"spotify", 11900, 11900},
	{"hotstar", 29900, 29900},
}

var senders = []string{"VM-HDFCBK", "AX-ICICIB", "JD-SBIINB", "VK-KOTAKB"}

var noiseBodies = []string{
	"Congratulations! You have won Rs.5000 in our lucky draw. Claim now!",
	"Get a personal loan approved instantly. Apply now!",
	"Recharge now and get 2GB extra data. Offer expires today!",
}

func main() {
	var (
		output   = flag.String("output", "inbox.csv", "output CSV path")
		count    = flag.Int("count", 200, "number of transactional messages")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		noisePct = flag.Int("noise", 30, "percentage of noise messages to mix in")
		dupPct   = flag.Int("duplicates", 10, "percentage of duplicate deliveries")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	file, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"body", "sender", "timestamp"}); err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	// Spread messages over the last 120 days.
	now := time.Now().UnixMilli()
	start := now - 120*24*60*60*1000

	rows := 0
	write := func(body, sender string, ts int64) {
		if err := w.Write([]string{body, sender, strconv.FormatInt(ts, 10)}); err != nil {
			log.Fatalf("failed to write row: %v", err)
		}
		rows++
	}

	for i := 0; i < *count; i++ {
		ts := start + rng.Int63n(now-start)
		sender := senders[rng.Intn(len(senders))]
		body := transactionalBody(rng)
		write(body, sender, ts)

		// Duplicate delivery: same message re-sent within the drift window.
		if rng.Intn(100) < *dupPct {
			write(body, sender, ts+rng.Int63n(240_000))
		}
		if rng.Intn(100) < *noisePct {
			write(noiseBody(rng), "AD-PROMO", ts+rng.Int63n(3_600_000))
		}
	}

	// Subscription charges on a monthly cadence so the recurring detector
	// has something to find.
	for _, sub := range subscriptions {
		sender := senders[rng.Intn(len(senders))]
		ts := start + rng.Int63n(7*24*60*60*1000)
		for ts < now {
			write(debitBody(rng, sub.name, sub.minPaise), sender, ts)
			ts += 30 * 24 * 60 * 60 * 1000
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("failed to flush output: %v", err)
	}
	fmt.Printf("Wrote %d messages to %s (seed %d)\n", rows, *output, *seed)
}

func transactionalBody(rng *rand.Rand) string {
	m := merchants[rng.Intn(len(merchants))]
	paise := m.minPaise + rng.Int63n(m.maxPaise-m.minPaise+1)

	if rng.Intn(100) < 15 {
		return fmt.Sprintf("INR %s credited to your A/C XX%04d by IMPS. Avl Bal %s",
			rupees(paise), rng.Intn(10000), rupees(paise*rng.Int63n(20)+paise))
	}
	return debitBody(rng, m.name, paise)
}

func debitBody(rng *rand.Rand, name string, paise int64) string {
	account := rng.Intn(10000)
	balance := paise*rng.Int63n(30) + paise
	switch rng.Intn(3) {
	case 0:
		return fmt.Sprintf("Rs.%s paid to %s via UPI from A/C XX%04d. Avl Bal %s",
			rupees(paise), name, account, rupees(balance))
	case 1:
		return fmt.Sprintf("Rs.%s debited from A/C XX%04d at %s on %s. Avl Bal %s",
			rupees(paise), account, name, time.Now().Format("02-01-2006"), rupees(balance))
	default:
		return fmt.Sprintf("Amt %s spent on card ending %04d at %s",
			rupees(paise), account, name)
	}
}

func noiseBody(rng *rand.Rand) string {
	if rng.Intn(2) == 0 {
		return fmt.Sprintf("Your OTP is %04d. Do not share it with anyone.", rng.Intn(10000))
	}
	return noiseBodies[rng.Intn(len(noiseBodies))]
}

func rupees(paise int64) string {
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}
