// Command sidetreed is the daemon entrypoint: it wires configuration,
// persistent store, upstream chain client, sync engine, and HTTP query
// server together and runs until interrupted. Grounded on this project's
// teacher's apiserver/main.go (parse config -> connect store -> connect
// upstream -> start HTTP server -> spawn background loop -> block on
// interrupt) and util/panics.GoroutineWrapperFunc for the spawned loop's
// panic handling.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/config"
	"github.com/daglabs/sidetree-anchor-engine/logger"
	"github.com/daglabs/sidetree-anchor-engine/panics"
	"github.com/daglabs/sidetree-anchor-engine/quantile"
	"github.com/daglabs/sidetree-anchor-engine/queryapi"
	"github.com/daglabs/sidetree-anchor-engine/resthandlers"
	"github.com/daglabs/sidetree-anchor-engine/store"
	"github.com/daglabs/sidetree-anchor-engine/sync"
	"github.com/daglabs/sidetree-anchor-engine/txlog"
)

var log = logger.Subsystem(logger.SubsystemTags.CNFG)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing command-line arguments: %s\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogRotators(cfg.LogDir, cfg.ErrLogDir); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing log rotators: %s\n", err)
		os.Exit(1)
	}
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing --debuglevel: %s\n", err)
		os.Exit(1)
	}
	db, err := store.OpenLevelDBStore(cfg.DataDir)
	if err != nil {
		panic(fmt.Errorf("error opening leveldb store: %s", err))
	}
	defer panics.HandlePanic(log, nil, db.Close)
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("error closing store: %s", err)
		}
	}()

	rpcClient, err := chain.NewRPCClient(chain.RPCConfig{
		Host:         cfg.RPCHost,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
		DisableTLS:   cfg.RPCDisableTLS,
		HTTPPostMode: true,
	})
	if err != nil {
		panic(fmt.Errorf("error connecting to upstream RPC: %s", err))
	}
	chainClient := chain.NewRetryingClient(rpcClient, chain.RetryPolicy{
		BaseDelay:  time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		MaxRetries: int(cfg.RequestMaxRetries),
	})

	txLog := txlog.New(db)

	qfc := cfg.ProofOfFee.TransactionFeeQuantileConfig
	quantileCalc, err := quantile.NewCalculator(db, qfc.FeeApproximation, int(qfc.WindowSizeInBatches), qfc.Quantile)
	if err != nil {
		panic(fmt.Errorf("error constructing quantile calculator: %s", err))
	}

	lastSeen := resumeLastSeen(txLog)
	engine := sync.New(chainClient, txLog, quantileCalc, sync.Config{
		AnchorPrefix:         []byte(cfg.SidetreeTransactionPrefix),
		GenesisBlock:         cfg.GenesisBlockNumber,
		MaxTransactionInputs: cfg.MaxTransactionInputCount,
		BatchSizeInBlocks:    qfc.BatchSizeInBlocks,
		SampleSize:           int(qfc.SampleSize),
	}, lastSeen)

	api := queryapi.New(txLog, quantileCalc, chainClient, queryapi.Config{
		PageSize:                 cfg.TransactionFetchPageSize,
		BatchSizeInBlocks:        qfc.BatchSizeInBlocks,
		HistoricalOffsetInBlocks: cfg.ProofOfFee.HistoricalOffsetInBlocks,
		QuantileScale:            cfg.ProofOfFee.QuantileScale,
	})

	router := mux.NewRouter()
	resthandlers.NewRouter(api).Register(router)
	httpServer := &http.Server{Addr: cfg.HTTPListen, Handler: router}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("HTTP server stopped: %s", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	spawn := panics.GoroutineWrapperFunc(log)
	spawn(func() {
		engine.Run(ctx, time.Duration(cfg.TransactionPollPeriodSecs)*time.Second)
		if engine.State() == sync.StateHalted {
			panics.Exit(log, "sync engine halted: persistence failure during rollback requires external restart", db.Close)
		}
	})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Infof("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error shutting down HTTP server: %s", err)
	}
}

// resumeLastSeen reconstructs EngineState.last_seen_block from the tail
// of the persisted transaction log, so a restart does not reprocess
// blocks already reflected in the store.
func resumeLastSeen(txLog *txlog.Log) *sync.SeenBlock {
	last, ok, err := txLog.Last()
	if err != nil || !ok {
		return nil
	}
	return &sync.SeenBlock{Height: last.BlockHeight, Hash: last.BlockHash}
}
