// Cliente bancário UDP: descobre o servidor por broadcast, depois lê
// pares "<ipv4> <valor>" da entrada padrão e os submete ao laço de
// requisição numerada.
//
// A forma de inicialização (flag.Int para porta, mensagens de uso,
// exit code não-zero em falha) segue o padrão do binário cliente
// original.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/iLukSbr/bankudp/internal/client"
	"github.com/iLukSbr/bankudp/internal/logger"
)

func main() {
	port := flag.Int("port", 19000, "porta UDP em que o servidor escuta, usada na descoberta por broadcast")
	flag.Parse()

	log := logger.Default("client")

	if flag.NArg() == 1 {
		// Compatibilidade com a forma posicional "<program> <port>".
		p, err := parsePositionalPort(flag.Arg(0))
		if err != nil {
			log.Fatalf("argumento de porta inválido %q: %v", flag.Arg(0), err)
		}
		*port = p
	}

	conn, err := client.Discover(*port)
	if err != nil {
		log.Fatalf("descoberta: %v", err)
	}
	defer conn.Close()

	// Reproduz o banner "server_addr" do cliente original, em nível
	// DEBUG já que a saída padrão do cliente é reservada para os
	// resultados das transferências e consultas de saldo.
	log.Debugf("servidor vinculado em %s", conn.RemoteAddr())

	th := client.NewThreads(client.NewLoop(conn), os.Stdin, os.Stdout)
	if err := th.Run(); err != nil {
		log.Fatalf("sessão: %v", err)
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
