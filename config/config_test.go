package config

import "testing"

func TestValidateRejectsOutOfRangeQuantile(t *testing.T) {
	cfg := defaults()
	cfg.RPCHost = "127.0.0.1:8332"
	cfg.ProofOfFee.TransactionFeeQuantileConfig.Quantile = 1.5
	if err := validate(cfg); err == nil {
		t.Fatal("expected an error for quantile outside (0, 1)")
	}
}

func TestValidateRejectsZeroBatchSize(t *testing.T) {
	cfg := defaults()
	cfg.RPCHost = "127.0.0.1:8332"
	cfg.ProofOfFee.TransactionFeeQuantileConfig.BatchSizeInBlocks = 0
	if err := validate(cfg); err == nil {
		t.Fatal("expected an error for a zero batch size")
	}
}

func TestValidateRequiresRPCHost(t *testing.T) {
	cfg := defaults()
	if err := validate(cfg); err == nil {
		t.Fatal("expected an error when rpchost is unset")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := defaults()
	cfg.RPCHost = "127.0.0.1:8332"
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults plus an rpchost to validate, got: %v", err)
	}
}
