package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"runtime"

	"github.com/urfave/cli/v2"
)

var (
	// PProfFlag enables the pprof HTTP server.
	PProfFlag = &cli.BoolFlag{
		Name:  "pprof",
		Usage: "Enable the pprof HTTP server",
	}
	// PProfPortFlag defines the port the pprof HTTP server listens on.
	PProfPortFlag = &cli.IntFlag{
		Name:  "pprofport",
		Usage: "pprof HTTP server listening port",
		Value: 6060,
	}
	// PProfAddrFlag defines the interface the pprof HTTP server binds to.
	PProfAddrFlag = &cli.StringFlag{
		Name:  "pprofaddr",
		Usage: "pprof HTTP server listening interface",
		Value: "127.0.0.1",
	}
	// MemProfileRateFlag tunes the runtime memory profiling rate.
	MemProfileRateFlag = &cli.IntFlag{
		Name:  "memprofilerate",
		Usage: "Turn on memory profiling with the given rate",
		Value: runtime.MemProfileRate,
	}
	// BlockProfileRateFlag turns on block profiling with the given rate.
	BlockProfileRateFlag = &cli.IntFlag{
		Name:  "blockprofilerate",
		Usage: "Turn on block profiling with the given rate",
	}
	// MutexProfileFractionFlag turns on mutex profiling with the given rate.
	MutexProfileFractionFlag = &cli.IntFlag{
		Name:  "mutexprofilefraction",
		Usage: "Turn on mutex profiling with the given rate",
	}
	// CPUProfileFlag writes a CPU profile to the given file.
	CPUProfileFlag = &cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "Write CPU profile to the given file",
	}
	// TraceFlag writes a Go execution trace to the given file.
	TraceFlag = &cli.StringFlag{
		Name:  "trace",
		Usage: "Write execution trace to the given file",
	}
)

// Flags holds the profiling flags in the order they show up in help output.
var Flags = []cli.Flag{
	PProfFlag,
	PProfAddrFlag,
	PProfPortFlag,
	MemProfileRateFlag,
	BlockProfileRateFlag,
	MutexProfileFractionFlag,
	CPUProfileFlag,
	TraceFlag,
}

// Setup initializes profiling based on the CLI flags. It should be called
// as early as possible in the program.
func Setup(ctx *cli.Context) error {
	runtime.MemProfileRate = ctx.Int(MemProfileRateFlag.Name)
	Handler.SetBlockProfileRate(ctx.Int(BlockProfileRateFlag.Name))
	Handler.SetMutexProfileFraction(ctx.Int(MutexProfileFractionFlag.Name))
	if traceFile := ctx.String(TraceFlag.Name); traceFile != "" {
		if err := Handler.StartGoTrace(traceFile); err != nil {
			return err
		}
	}
	if cpuFile := ctx.String(CPUProfileFlag.Name); cpuFile != "" {
		if err := Handler.StartCPUProfile(cpuFile); err != nil {
			return err
		}
	}
	if ctx.Bool(PProfFlag.Name) {
		address := fmt.Sprintf("%s:%d", ctx.String(PProfAddrFlag.Name), ctx.Int(PProfPortFlag.Name))
		StartPProf(address)
	}
	return nil
}

// Exit stops all running profiles, flushing their output to the
// respective file.
func Exit(ctx *cli.Context) {
	if ctx.String(CPUProfileFlag.Name) != "" {
		if err := Handler.StopCPUProfile(); err != nil {
			log.WithError(err).Error("Could not stop CPU profile")
		}
	}
	if ctx.String(TraceFlag.Name) != "" {
		if err := Handler.StopGoTrace(); err != nil {
			log.WithError(err).Error("Could not stop Go trace")
		}
	}
}

// StartPProf spawns the pprof HTTP server on the given address. The
// net/http/pprof import registers its handlers on the default mux.
func StartPProf(address string) {
	log.WithField("addr", fmt.Sprintf("http://%s/debug/pprof", address)).Info("Starting pprof server")
	go func() {
		if err := http.ListenAndServe(address, nil); err != nil {
			log.WithError(err).Error("Failure in running pprof server")
		}
	}()
}
