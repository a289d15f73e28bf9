package analyze

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"capsift/pkg/pipeline"

	"gopkg.in/yaml.v3"
)

type renderFunc func(io.Writer, *pipeline.Result) error

var renderers = map[string]renderFunc{
	"table": renderTable,
	"json":  renderJSON,
	"yaml":  renderYAML,
}

func renderTable(w io.Writer, res *pipeline.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tETHTYPE\tSOURCE\tTARGET\tLENGTH\tIPV4")
	for _, r := range res.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Index, rowTime(r), r.EthType, r.Source, r.Target, r.Length, ipv4Column(r.IPv4))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := res.Stats
	_, err := fmt.Fprintf(w, "\n%d records, %d decoded, %d dropped, %d ipv4, %d ipv4 undecodable, %d bad checksum\n",
		s.Records, s.Decoded, s.Dropped, s.IPv4, s.IPv4Failed, s.BadChecksum)
	return err
}

func renderJSON(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func renderYAML(w io.Writer, res *pipeline.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}

func rowTime(r pipeline.Row) string {
	ts := time.Unix(int64(r.TsSec), int64(r.TsUsec)*int64(time.Microsecond))
	return ts.UTC().Format("2006-01-02 15:04:05.000000")
}

func ipv4Column(ip *pipeline.IPv4Summary) string {
	if ip == nil {
		return "-"
	}
	s := fmt.Sprintf("%s > %s proto %d ttl %d len %d", ip.Source, ip.Target, ip.Protocol, ip.TTL, ip.TotalLength)
	if !ip.ChecksumValid {
		s += " bad-cksum"
	}
	return s
}
