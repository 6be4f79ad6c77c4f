// Command meshq runs batches of closest-point queries against a
// triangle mesh model and reports timings, mirroring the kind of batch
// workload the index is built for. It can also dump the shape of the
// built tree and generate benchmark models.
package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/deadsy/sdfx/obj"
	sdfxrender "github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	"github.com/olekukonko/tablewriter"
	"github.com/soypat/glgl/math/ms3"
	"github.com/urfave/cli"
	"gonum.org/v1/gonum/stat"

	"github.com/tkchanat/meshq"
	"github.com/tkchanat/meshq/log"
	"github.com/tkchanat/meshq/meshio"
)

// batchSize is the number of queries handed to a worker at a time.
const batchSize = 256

var logger = log.New("meshq")

func main() {
	app := cli.NewApp()
	app.Name = "meshq"
	app.Usage = "closest-point queries on triangle meshes"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v", Usage: "enable verbose logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.Bool("v") {
			log.SetLevel(log.Debug)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:  "query",
			Usage: "run a batch of random closest-point queries against a model",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "model", Usage: "OBJ or STL model file"},
				cli.IntFlag{Name: "points", Value: 100000, Usage: "number of query points"},
				cli.Float64Flag{Name: "max-dist", Value: 0.5, Usage: "maximum search distance per query"},
				cli.Float64Flag{Name: "spread", Value: 1.5, Usage: "radius of the sphere query points are sampled from"},
				cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "parallel query workers"},
				cli.Int64Flag{Name: "seed", Value: 1, Usage: "sample generator seed"},
				cli.StringFlag{Name: "csv", Usage: "write per-query results to this CSV file"},
			},
			Action: queryCmd,
		},
		{
			Name:   "stats",
			Usage:  "print the shape of the index built for a model",
			Flags:  []cli.Flag{cli.StringFlag{Name: "model", Usage: "OBJ or STL model file"}},
			Action: statsCmd,
		},
		{
			Name:  "gen",
			Usage: "generate a benchmark STL model",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out", Value: "model.stl"},
				cli.StringFlag{Name: "shape", Value: "sphere", Usage: "sphere or bolt"},
				cli.IntFlag{Name: "cells", Value: 200, Usage: "marching cubes resolution"},
			},
			Action: genCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func buildIndex(c *cli.Context) (*meshq.Index, string, error) {
	model := c.String("model")
	if model == "" {
		return nil, "", fmt.Errorf("missing --model argument")
	}
	start := time.Now()
	mesh, err := meshio.Load(model)
	if err != nil {
		return nil, "", err
	}
	logger.Infof("loaded %s: %d triangles in %v", model, mesh.NumTriangles(), time.Since(start))
	start = time.Now()
	index, err := meshq.NewIndex(mesh)
	if err != nil {
		return nil, "", err
	}
	logger.Infof("built index in %v", time.Since(start))
	return index, model, nil
}

func queryCmd(c *cli.Context) error {
	index, model, err := buildIndex(c)
	if err != nil {
		return err
	}
	n := c.Int("points")
	maxDist := float32(c.Float64("max-dist"))
	spread := float32(c.Float64("spread"))
	workers := c.Int("workers")
	if workers < 1 {
		workers = 1
	}

	rng := rand.New(rand.NewSource(c.Int64("seed")))
	queries := make([]ms3.Vec, n)
	for i := range queries {
		queries[i] = ms3.Scale(spread, randomInUnitSphere(rng))
	}

	found := make([]bool, n)
	closest := make([]ms3.Vec, n)
	nbatch := (n + batchSize - 1) / batchSize
	batchMicros := make([]float64, nbatch)

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				lo := b * batchSize
				hi := lo + batchSize
				if hi > n {
					hi = n
				}
				bstart := time.Now()
				for i := lo; i < hi; i++ {
					p, ok, _ := index.ClosestPoint(queries[i], maxDist)
					found[i], closest[i] = ok, p
				}
				batchMicros[b] = float64(time.Since(bstart).Microseconds())
			}
		}()
	}
	for b := 0; b < nbatch; b++ {
		jobs <- b
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	hits := 0
	for _, ok := range found {
		if ok {
			hits++
		}
	}
	if path := c.String("csv"); path != "" {
		if err := writeCSV(path, model, maxDist, queries, found, closest); err != nil {
			return err
		}
		logger.Infof("wrote %s", path)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"triangles", strconv.Itoa(index.Triangles())})
	table.Append([]string{"queries", strconv.Itoa(n)})
	table.Append([]string{"workers", strconv.Itoa(workers)})
	table.Append([]string{"hits", strconv.Itoa(hits)})
	table.Append([]string{"total time", elapsed.String()})
	table.Append([]string{"mean batch (us)", fmt.Sprintf("%.1f", stat.Mean(batchMicros, nil))})
	table.Append([]string{"stddev batch (us)", fmt.Sprintf("%.1f", stat.StdDev(batchMicros, nil))})
	table.Render()
	return nil
}

func statsCmd(c *cli.Context) error {
	index, _, err := buildIndex(c)
	if err != nil {
		return err
	}
	type level struct {
		internal int
		leaves   int
	}
	var levels []level
	index.Tree().Walk(func(depth int, _ ms3.Box, leaf bool) {
		for len(levels) <= depth {
			levels = append(levels, level{})
		}
		if leaf {
			levels[depth].leaves++
		} else {
			levels[depth].internal++
		}
	})
	bb := index.Bound()
	logger.Infof("model bound min=%+v max=%+v", bb.Min, bb.Max)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Depth", "Internal", "Leaves"})
	for d, l := range levels {
		table.Append([]string{strconv.Itoa(d), strconv.Itoa(l.internal), strconv.Itoa(l.leaves)})
	}
	table.Render()
	return nil
}

func genCmd(c *cli.Context) error {
	var (
		s   sdf.SDF3
		err error
	)
	switch shape := c.String("shape"); shape {
	case "sphere":
		s, err = sdf.Sphere3D(1.0)
	case "bolt":
		s, err = obj.Bolt(&obj.BoltParms{
			Thread:      "npt_1/2",
			Style:       "hex",
			Tolerance:   0.1,
			TotalLength: 20,
			ShankLength: 10,
		})
	default:
		return fmt.Errorf("unknown shape %q", shape)
	}
	if err != nil {
		return err
	}
	out := c.String("out")
	sdfxrender.ToSTL(s, c.Int("cells"), out, &sdfxrender.MarchingCubesOctree{})
	logger.Infof("wrote %s", out)
	return nil
}

func writeCSV(path, model string, maxDist float32, queries []ms3.Vec, found []bool, closest []ms3.Vec) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	// First line names the model so the visualizer can load it alongside
	// the query results.
	if err := w.Write([]string{model}); err != nil {
		return err
	}
	rec := make([]string, 8)
	for i := range queries {
		rec[0] = fmtF(maxDist)
		rec[1] = fmtF(queries[i].X)
		rec[2] = fmtF(queries[i].Y)
		rec[3] = fmtF(queries[i].Z)
		if found[i] {
			rec[4] = "1"
		} else {
			rec[4] = "0"
		}
		rec[5] = fmtF(closest[i].X)
		rec[6] = fmtF(closest[i].Y)
		rec[7] = fmtF(closest[i].Z)
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtF(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// randomInUnitSphere rejection-samples a point inside the unit sphere.
func randomInUnitSphere(rng *rand.Rand) ms3.Vec {
	for {
		p := ms3.Vec{
			X: 2*rng.Float32() - 1,
			Y: 2*rng.Float32() - 1,
			Z: 2*rng.Float32() - 1,
		}
		if ms3.Norm2(p) >= 1 {
			continue
		}
		return p
	}
}
