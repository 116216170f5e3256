package config

// DefaultConfigYAML is the starter configuration written by `draftd init`.
// Values not specified use the in-code defaults.
const DefaultConfigYAML = `# draftd configuration
#
# Values not specified here use sensible defaults.

log:
  level: info
  format: auto

state:
  path: .draftd/orders.db

server:
  addr: 127.0.0.1:8732
  cors_origins: []

models:
  openai:
    # api_key defaults to the DRAFTD_MODELS_OPENAI_API_KEY env var
    api_key: ""
  anthropic:
    api_key: ""

lookup:
  # Metered vendor lookups allowed per calendar month.
  monthly_ceiling: 500

checkpoints:
  escalator_interval: 5m
  sweep_interval: 1h

costs:
  max_per_order: 25.0
  alert_threshold: 0.8

notify:
  # Client notifications POST here; empty logs them instead.
  webhook_url: ""
  queue_size: 256
`
