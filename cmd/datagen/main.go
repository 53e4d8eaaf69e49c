// Datagen emits a synthetic transaction ledger CSV with injected
// laundering patterns for exercising the analysis pipeline.

package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

type generator struct {
	w        *csv.Writer
	rng      *rand.Rand
	start    time.Time
	accounts []string
}

func main() {
	var (
		count  = flag.Int("transactions", 10000, "total transactions to generate")
		output = flag.String("output", "transactions.csv", "output CSV path")
		seed   = flag.Int64("seed", 42, "PRNG seed for reproducible ledgers")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	f, err := os.Create(*output)
	if err != nil {
		slog.Error("failed to create output file", "path", *output, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	g := &generator{
		w:     csv.NewWriter(f),
		rng:   rand.New(rand.NewSource(*seed)),
		start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i <= 1000; i++ {
		g.accounts = append(g.accounts, fmt.Sprintf("ACC_%04d", i))
	}

	if err := g.generate(*count); err != nil {
		slog.Error("generation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("ledger generated", "path", *output, "transactions", *count)
}

func (g *generator) generate(count int) error {
	if err := g.w.Write([]string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}); err != nil {
		return err
	}

	g.noise(count - 400)
	g.cycles()
	g.fanIn()
	g.burst()
	g.shellChain()
	g.nocturnal()
	g.payroll()

	g.w.Flush()
	return g.w.Error()
}

func (g *generator) row(id, sender, receiver string, amount float64, ts time.Time) {
	_ = g.w.Write([]string{
		id,
		sender,
		receiver,
		fmt.Sprintf("%.2f", amount),
		ts.Format(timeLayout),
	})
}

// noise fills the ledger with unremarkable daytime activity.
func (g *generator) noise(n int) {
	for i := 0; i < n; i++ {
		sender := g.accounts[g.rng.Intn(len(g.accounts))]
		receiver := g.accounts[g.rng.Intn(len(g.accounts))]
		for receiver == sender {
			receiver = g.accounts[g.rng.Intn(len(g.accounts))]
		}
		amount := 10 + g.rng.Float64()*4990
		ts := g.start.Add(time.Duration(g.rng.Intn(30*24*3600)) * time.Second)
		g.row(fmt.Sprintf("TX_%06d", i), sender, receiver, amount, ts)
	}
}

// cycles injects five 4-node carousels, one hop per hour.
func (g *generator) cycles() {
	for r := 0; r < 5; r++ {
		nodes := make([]string, 4)
		for i := range nodes {
			nodes[i] = fmt.Sprintf("CYC_%d_%d", r, i)
		}
		for i := range nodes {
			next := nodes[(i+1)%len(nodes)]
			ts := g.start.Add(time.Duration(r)*24*time.Hour + time.Duration(i)*time.Hour)
			g.row(fmt.Sprintf("TX_CYC_%d_%d", r, i), nodes[i], next, 1000, ts)
		}
	}
}

// fanIn injects fifty distinct senders aggregating into one sink.
func (g *generator) fanIn() {
	for i := 0; i < 50; i++ {
		ts := g.start.Add(10*24*time.Hour + time.Duration(i)*time.Hour)
		g.row(fmt.Sprintf("TX_FAN_IN_%d", i), fmt.Sprintf("SRCE_%03d", i), "SINK_MEGA_01", 500, ts)
	}
}

// burst injects fifty payouts from one account within an hour.
func (g *generator) burst() {
	for i := 0; i < 50; i++ {
		receiver := g.accounts[g.rng.Intn(len(g.accounts))]
		ts := g.start.Add(15*24*time.Hour + time.Duration(i)*time.Minute)
		g.row(fmt.Sprintf("TX_BURST_%d", i), "BURST_NODE_X", receiver, 50, ts)
	}
}

// shellChain injects a five-hop pass-through chain of single-purpose
// accounts, each forwarding within an hour of receipt.
func (g *generator) shellChain() {
	nodes := []string{"SHELL_SRC", "SHELL_A", "SHELL_B", "SHELL_C", "SHELL_D", "SHELL_DST"}
	for i := 0; i < len(nodes)-1; i++ {
		ts := g.start.Add(20*24*time.Hour + time.Duration(i)*time.Hour)
		g.row(fmt.Sprintf("TX_SHELL_%d", i), nodes[i], nodes[i+1], 9500, ts)
	}
}

// nocturnal injects an account transacting almost exclusively between
// 11 PM and 4 AM.
func (g *generator) nocturnal() {
	nightHours := []int{23, 0, 1, 2, 3, 4}
	for i := 0; i < 30; i++ {
		day := g.start.Add(time.Duration(i%10) * 24 * time.Hour)
		hour := nightHours[i%len(nightHours)]
		ts := time.Date(day.Year(), day.Month(), day.Day(), hour, g.rng.Intn(60), 0, 0, time.UTC)
		receiver := g.accounts[g.rng.Intn(len(g.accounts))]
		g.row(fmt.Sprintf("TX_NIGHT_%d", i), "NIGHT_OWL_7", receiver, 200+g.rng.Float64()*300, ts)
	}
}

// payroll injects a legitimate employer paying forty employees near-identical
// salaries every thirty days. The allow-list heuristics should clear it.
func (g *generator) payroll() {
	n := 0
	for cycle := 0; cycle < 3; cycle++ {
		payday := g.start.Add(time.Duration(cycle) * 30 * 24 * time.Hour).Add(9 * time.Hour)
		for emp := 0; emp < 40; emp++ {
			amount := 3000 + g.rng.Float64()*20
			g.row(fmt.Sprintf("TX_PAYROLL_%d", n), "EMPLOYER_CORP", fmt.Sprintf("EMP_%03d", emp), amount, payday)
			n++
		}
	}
}
