package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"

	"github.com/openfluke/lstmcell/config"
	"github.com/openfluke/lstmcell/detector"
	"github.com/openfluke/lstmcell/nn"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (defaults are used when empty)")
	device := flag.String("device", "", "Override the configured device (cpu or gpu)")
	verbose := flag.Bool("v", false, "Log every step")
	probe := flag.Bool("probe", false, "Print the GPU adapter report and exit")
	flag.Parse()

	if *probe {
		report, err := detector.DetectJSON()
		if err != nil {
			log.Fatalf("Probe failed: %v", err)
		}
		fmt.Println(report)
		return
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *verbose {
		cfg.Run.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	fmt.Printf("LSTM cell: in=%d out=%d dtype=%s device=%s\n", cfg.InSize, cfg.OutSize, cfg.DType, cfg.Device)

	var err error
	switch cfg.DType {
	case "float64":
		err = run[float64](cfg, nil)
	default:
		var backend nn.Backend[float32]
		if cfg.Device == "gpu" {
			g, gerr := nn.NewGPUBackend()
			if gerr != nil {
				log.Fatalf("Failed to initialize GPU: %v", gerr)
			}
			defer g.ReleaseGPU()
			backend = g
		}
		err = run[float32](cfg, backend)
	}
	if err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
}

// run builds a cell, feeds it random sequences of the configured lengths
// and prints a summary of each step.
func run[T nn.Float](cfg config.Config, backend nn.Backend[T]) error {
	rng := rand.New(rand.NewSource(cfg.Seed))

	opts := []nn.Option{nn.WithRand(rng)}
	if backend != nil {
		opts = append(opts, nn.WithBackend(backend))
	}
	var observers nn.MultiObserver
	if cfg.Run.Verbose {
		observers = append(observers, &nn.ConsoleObserver{Verbose: true})
	}
	if cfg.Run.ObserverURL != "" {
		observers = append(observers, nn.NewHTTPObserver(cfg.Run.ObserverURL))
	}
	if len(observers) > 0 {
		opts = append(opts, nn.WithObserver(observers))
	}

	cell, err := nn.NewStatefulLSTM[T](cfg.InSize, cfg.OutSize, opts...)
	if err != nil {
		return err
	}

	lengths := append([]int(nil), cfg.Run.Lengths...)
	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))
	seqs := make([]*nn.Tensor[T], len(lengths))
	for i, n := range lengths {
		s := nn.NewTensor[T](n, cfg.InSize)
		for j := range s.Data {
			s.Data[j] = T(rng.NormFloat64())
		}
		seqs[i] = s
	}

	outputs, err := cell.Run(seqs)
	if err != nil {
		return err
	}

	for t, y := range outputs {
		host, err := cell.Backend().Download(y)
		if err != nil {
			return fmt.Errorf("download step %d: %w", t, err)
		}
		fmt.Printf("t=%-3d rows=%-3d min=%+.4f max=%+.4f mean=%+.4f\n",
			t, host.Rows(), nn.Min(host.Data), nn.Max(host.Data), nn.Mean(host.Data))
	}
	fmt.Printf("Done: %d steps on %s\n", cell.Steps(), cell.Backend().Device())
	return nil
}
