package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/byytelope/deptproxy/internal/admin"
)

func main() {
	addr := flag.String("addr", "http://localhost:3000", "Daemon base URL")
	doList := flag.Bool("list", false, "List cache slots")
	doClear := flag.Bool("clear", false, "Clear every cache slot")
	doHealth := flag.Bool("health", false, "Report daemon health")
	service := flag.String("service", "", "Service to check (used with -health)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  deptproxy -list [-addr <url>]\n")
		fmt.Fprintf(os.Stderr, "  deptproxy -clear [-addr <url>]\n")
		fmt.Fprintf(os.Stderr, "  deptproxy -health [-service <name>] [-addr <url>]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	nActions := 0
	for _, set := range []bool{*doList, *doClear, *doHealth} {
		if set {
			nActions++
		}
	}
	if nActions != 1 {
		flag.Usage()
		os.Exit(2)
	}

	httpClient := &http.Client{
		Timeout: time.Second * 10,
	}
	h := Handler{
		client: admin.NewClient(httpClient, *addr),
		out:    os.Stdout,
		err:    os.Stderr,
	}

	var err error
	switch {
	case *doList:
		err = h.List()
	case *doClear:
		err = h.Clear()
	case *doHealth:
		err = h.Health(*service)
	}
	if err != nil {
		os.Exit(1)
	}
}
