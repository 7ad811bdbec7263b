// Package output renders scan results for the console and exports them
// to JSON. It consumes the frozen result mapping; nothing here mutates.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"quantumscan/port"
)

// PrintTable renders the per-port results as a table, followed by the
// scan statistics block.
func PrintTable(results map[uint16]*port.PortResult, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tTCP STATES\tUDP\tFILTERING\tSERVICE\tVERSION\tVULNS\tOS GUESS")
	for _, p := range sortedPorts(results) {
		r := results[p]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p,
			tcpStates(r),
			r.UDPState,
			r.Filtering,
			r.Service,
			r.Version,
			strings.Join(r.Vulns, "; "),
			r.OSGuess)
	}
	_ = tw.Flush()
	printStatistics(results, w)
}

func tcpStates(r *port.PortResult) string {
	states := r.TCPStateStrings()
	names := make([]string, 0, len(states))
	for n := range states {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+states[n])
	}
	return strings.Join(parts, ", ")
}

func printStatistics(results map[uint16]*port.PortResult, w io.Writer) {
	var openTCP, openUDP []uint16
	totalVulns := 0
	for _, p := range sortedPorts(results) {
		r := results[p]
		for _, st := range r.TCPStates {
			if st == port.StateOpen {
				openTCP = append(openTCP, p)
				break
			}
		}
		if r.UDPState == port.StateOpen {
			openUDP = append(openUDP, p)
		}
		totalVulns += len(r.Vulns)
	}
	fmt.Fprintf(w, "\nScan statistics:\n")
	fmt.Fprintf(w, "Open TCP ports: %d => %v\n", len(openTCP), openTCP)
	fmt.Fprintf(w, "Open UDP ports: %d => %v\n", len(openUDP), openUDP)
	fmt.Fprintf(w, "Vulnerabilities found: %d\n", totalVulns)
}

func sortedPorts(results map[uint16]*port.PortResult) []uint16 {
	ports := make([]uint16, 0, len(results))
	for p := range results {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}
