// Command resample_csv aggregates a bar CSV into a coarser timeframe.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/csvdata"
)

func resample(in, out string, src, dst bars.Timeframe) (int, error) {
	if dst.Duration()%src.Duration() != 0 {
		return 0, fmt.Errorf("dst %s must be a multiple of src %s", dst, src)
	}
	t, err := csvdata.LoadFile(in, src)
	if err != nil {
		return 0, err
	}
	agg, err := bars.Resample(t, dst)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := csvdata.WriteBars(f, agg); err != nil {
		return 0, err
	}
	return agg.Len(), f.Close()
}

func main() {
	in := flag.String("in", "", "Input CSV (timestamp,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	src := flag.String("src", "5m", "Source timeframe (e.g., 5m)")
	dst := flag.String("dst", "15m", "Target timeframe (e.g., 15m)")
	flag.Parse()

	if *in == "" || *out == "" {
		log.Fatal("-in and -out are required")
	}
	srcTF, err := bars.ParseTimeframe(*src)
	if err != nil {
		log.Fatal(err)
	}
	dstTF, err := bars.ParseTimeframe(*dst)
	if err != nil {
		log.Fatal(err)
	}

	n, err := resample(*in, *out, srcTF, dstTF)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %d %s bars to %s\n", n, dstTF, *out)
}
