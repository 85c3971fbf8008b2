package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	errors int64
	warns  int64
}

type flowStat struct {
	records int64
	bytes   int64
}

var (
	componentStats sync.Map // map[string]*componentStat
	flowStats      sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	v, _ := componentStats.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).warns, 1)
}

func recordError(component string) {
	v, _ := componentStats.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).errors, 1)
}

// RecordFlow accumulates record and byte counts for a named pipeline stage.
// The totals are emitted by the periodic report.
func RecordFlow(stage string, records int, bytes int) {
	v, _ := flowStats.LoadOrStore(stage, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.records, int64(records))
	atomic.AddInt64(&fs.bytes, int64(bytes))
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	fields := Fields{}
	if len(cpuPercent) > 0 {
		fields["cpu_percent"] = cpuPercent[0]
	}
	if memStats != nil {
		fields["memory_mb"] = float64(memStats.Used) / 1024 / 1024
	}
	if diskStats != nil {
		fields["disk_mb"] = float64(diskStats.Used) / 1024 / 1024
	}

	componentStats.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*componentStat)
		fields[name+"_errors"] = atomic.LoadInt64(&cs.errors)
		fields[name+"_warns"] = atomic.LoadInt64(&cs.warns)
		return true
	})

	var data []cwtypes.MetricDatum
	flowStats.Range(func(k, v any) bool {
		stage := k.(string)
		fs := v.(*flowStat)
		records := atomic.LoadInt64(&fs.records)
		fields[stage+"_records"] = records
		fields[stage+"_bytes"] = atomic.LoadInt64(&fs.bytes)
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("RecordsTotal"),
			Dimensions: []cwtypes.Dimension{{Name: aws.String("stage"), Value: aws.String(stage)}},
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(records)),
		})
		return true
	})

	log.WithComponent("report").WithFields(fields).Info("periodic report")
	publishMetrics(ctx, data)
}
