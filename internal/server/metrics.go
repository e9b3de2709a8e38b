package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iLukSbr/bankudp/internal/bank"
)

// Metrics exporta os agregados do banco e os contadores de eventos
// do servidor como coleta Prometheus. Puramente observacional — não
// participa do protocolo de wire nem da lógica de negócio.
type Metrics struct {
	registry *prometheus.Registry

	clientsRegistered prometheus.Counter
	duplicates        prometheus.Counter
	outOfOrder        prometheus.Counter
	unknownOrigin     prometheus.Counter
	dropped           prometheus.Counter
}

// NewMetrics cria um registrador Prometheus isolado (não usa o
// DefaultRegisterer global) com os contadores do servidor.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		clientsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bankudp",
			Subsystem: "server",
			Name:      "clients_registered_total",
			Help:      "Clientes cadastrados via DISCOVERY.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bankudp",
			Subsystem: "server",
			Name:      "duplicate_requests_total",
			Help:      "REQs classificadas como retransmissão de uma já processada.",
		}),
		outOfOrder: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bankudp",
			Subsystem: "server",
			Name:      "out_of_order_requests_total",
			Help:      "REQs recebidas com número de sequência à frente do esperado.",
		}),
		unknownOrigin: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bankudp",
			Subsystem: "server",
			Name:      "unknown_origin_requests_total",
			Help:      "REQs de uma origem não cadastrada (respondidas com ERROR_REQ).",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bankudp",
			Subsystem: "server",
			Name:      "dropped_datagrams_total",
			Help:      "Datagramas descartados por serem curtos demais, de tipo desconhecido, ou de um tipo não esperado do cliente.",
		}),
	}
	reg.MustRegister(m.clientsRegistered, m.duplicates, m.outOfOrder, m.unknownOrigin, m.dropped)
	return m
}

// Registry expõe o *prometheus.Registry para que cmd/server possa
// montar um handler /metrics com promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// registerBankGauges expõe os três agregados globais do banco como
// GaugeFunc, lidos sob demanda a cada scrape via bank.State.Aggregates
// — nunca um caminho de escrita, então não interfere com a seção
// crítica de bank.State.Process.
func (m *Metrics) registerBankGauges(state *bank.State) {
	gauge := func(name, help string, read func(bank.Snapshot) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "bankudp",
			Subsystem: "bank",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(state.Aggregates()) })
	}
	m.registry.MustRegister(
		gauge("num_transactions", "Transferências efetivadas com sucesso.", func(s bank.Snapshot) float64 { return float64(s.NumTransactions) }),
		gauge("total_transferred", "Soma dos valores transferidos.", func(s bank.Snapshot) float64 { return float64(s.TotalTransferred) }),
		gauge("total_balance", "Soma dos saldos de todos os clientes.", func(s bank.Snapshot) float64 { return float64(s.TotalBalance) }),
	)
}

func (m *Metrics) IncClientsRegistered() { m.clientsRegistered.Inc() }
func (m *Metrics) IncDuplicates()        { m.duplicates.Inc() }
func (m *Metrics) IncOutOfOrder()        { m.outOfOrder.Inc() }
func (m *Metrics) IncUnknownOrigin()     { m.unknownOrigin.Inc() }
func (m *Metrics) IncDropped()           { m.dropped.Inc() }
