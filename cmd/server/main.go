// Servidor bancário UDP: liga uma porta, processa DISCOVERY/REQ com um
// pool fixo de workers, e opcionalmente expõe métricas Prometheus.
//
// A forma de inicialização (flag.Int para porta, mensagem de
// inicialização, exit code 1 em erro de bind) segue o padrão do
// binário servidor original: porta configurável, sem arquivo de
// configuração externo.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iLukSbr/bankudp/internal/logger"
	"github.com/iLukSbr/bankudp/internal/server"
)

func main() {
	log := logger.Default("server")

	host := flag.String("host", "0.0.0.0", "endereço para ligar o socket UDP")
	port := flag.Int("port", 19000, "porta UDP em que o servidor escuta")
	metricsAddr := flag.String("metrics-addr", "", "se definido, serve /metrics Prometheus neste endereço (ex: :9100)")
	flag.Parse()

	if flag.NArg() == 1 {
		// Compatibilidade com a forma posicional "<program> <port>".
		p, err := parsePositionalPort(flag.Arg(0))
		if err != nil {
			log.Fatalf("argumento de porta inválido %q: %v", flag.Arg(0), err)
		}
		*port = p
	}

	srv := server.New()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(srv.Metrics().Registry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithField("addr", *metricsAddr).Errorf("metrics: %v", err)
			}
		}()
		log.Infof("métricas Prometheus em http://%s/metrics", *metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("ligando em %s:%d", *host, *port)
	if err := srv.Run(ctx, *host, *port); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// parsePositionalPort valida a forma posicional de porta: deve ser um
// inteiro decimal dentro do intervalo de portas TCP/UDP válido.
func parsePositionalPort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("porta %d fora do intervalo 1-65535", p)
	}
	return p, nil
}
