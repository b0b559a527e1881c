package backend

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config, readOnly bool) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.LedgerBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.LedgerBackend)
	}

	cfg := Config{
		Type:            backendType,
		ReadOnly:        readOnly,
		RPCURL:          appConfig.EthRPCURL,
		Contract:        appConfig.ContractAddress,
		ExpectedChainID: appConfig.ExpectedChainID,
		SeedFile:        appConfig.MemorySeedFile,
	}
	if !readOnly {
		cfg.PrivateKey = appConfig.EthPrivateKey
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	if c.Type == EthBackend {
		if c.RPCURL == "" {
			return fmt.Errorf("RPC URL is required for eth backend")
		}
		if !common.IsHexAddress(c.Contract) {
			return fmt.Errorf("invalid contract address %q for eth backend", c.Contract)
		}
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{EthBackend.String(), MemoryBackend.String()}
}
