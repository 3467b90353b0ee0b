package main

// The bagcreate tool packages one record from an upstream source into a
// BagIt submission information package. The result is printed as JSON.

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/harvest"
	"github.com/ndlib/bagcreate/sip"
)

// various command line flags, with default values

var (
	recid       = flag.String("recid", "", "Unique ID of the record in the upstream source (a path for local)")
	source      = flag.String("source", "", "Source to read the record from")
	recordURL   = flag.String("url", "", "URL of the record, in place of -source and -recid")
	dryRun      = flag.Bool("dry-run", false, "Write a fetch.txt instead of downloading the payload")
	alternate   = flag.Bool("alternate-uri", false, "Use the alternate url of each file in the fetch.txt")
	algs        = flag.String("alg", "", "Comma separated checksum algorithms (default depends on source)")
	target      = flag.String("target", "", "Directory to move the package to")
	workdir     = flag.String("workdir", "", "Directory to assemble the package in")
	configFile  = flag.String("config", "", "TOML configuration file")
	verbose     = flag.Bool("v", false, "Display progress")
	veryVerbose = flag.Bool("vv", false, "Display debugging information")
	verify      = flag.String("verify", "", "Verify the bag at this path and exit")
	usage       = `
bagcreate -source <source> -recid <record id> [flags]
bagcreate -url <record url> [flags]
bagcreate -verify <bag directory>

`
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verify != "" {
		os.Exit(doVerify(*verify))
	}

	cfg := harvest.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = harvest.LoadConfig(*configFile)
		if err != nil {
			log.Fatalln(err)
		}
	}
	if *workdir != "" {
		cfg.WorkDir = *workdir
	}
	if *target != "" {
		cfg.Target = *target
	}
	cfg.Verbose = *veryVerbose

	logger := log.New(ioutil.Discard, "", log.LstdFlags)
	if *verbose || *veryVerbose {
		logger.SetOutput(os.Stderr)
	}

	job := harvest.Job{
		Source:    *source,
		RecID:     *recid,
		URL:       *recordURL,
		Dry:       *dryRun,
		Alternate: *alternate,
	}
	if *algs != "" {
		var err error
		job.Algorithms, err = bagit.ParseAlgorithms(*algs)
		if err != nil {
			log.Fatalln(err)
		}
	}

	h, err := harvest.New(cfg, logger)
	if err != nil {
		log.Fatalln(err)
	}
	res := h.Run(job)
	h.Close()
	printResult(res)
	if res.Status != 0 {
		os.Exit(1)
	}
}

func printResult(res sip.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	enc.Encode(res)
}

// doVerify checks the bag at root and returns the exit status.
func doVerify(root string) int {
	err := bagit.Verify(root)
	if err == nil {
		fmt.Println(root, "is valid")
		return 0
	}
	if be, ok := err.(*bagit.BagError); ok {
		for _, p := range be.Problems {
			fmt.Println(p)
		}
		fmt.Println(root, "is invalid")
		return 1
	}
	fmt.Println("Error:", err)
	return 2
}
