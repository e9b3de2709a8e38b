package server

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/iLukSbr/bankudp/internal/bank"
	"github.com/iLukSbr/bankudp/internal/protocol"
)

// timestamp formata o horário local no formato "YYYY-MM-DD HH:MM:SS"
// usado em todas as linhas de evento do servidor.
func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// startupLine é a linha emitida na inicialização do servidor, com os
// agregados zerados: "<ts> num_transactions 0 total_transferred 0
// total_balance 0".
func startupLine() string {
	return fmt.Sprintf("%s num_transactions 0 total_transferred 0 total_balance 0", timestamp())
}

// processedLine formata a linha de uma REQ processada com sucesso.
func processedLine(orig net.IP, seqn uint32, destIP uint32, value uint32, snap bank.Snapshot) string {
	return fmt.Sprintf("%s client %s id req %d dest %s value %d num_transactions %d total_transferred %d total_balance %d",
		timestamp(), orig, seqn, protocol.Uint32ToIP(destIP), value,
		snap.NumTransactions, snap.TotalTransferred, snap.TotalBalance)
}

// duplicateLine é idêntica a processedLine, mas com "DUP!!" inserido
// entre "client <orig>" e "id req", marcando que a requisição era uma
// retransmissão de uma já processada.
func duplicateLine(orig net.IP, seqn uint32, destIP uint32, value uint32, snap bank.Snapshot) string {
	return fmt.Sprintf("%s client %s DUP!! id req %d dest %s value %d num_transactions %d total_transferred %d total_balance %d",
		timestamp(), orig, seqn, protocol.Uint32ToIP(destIP), value,
		snap.NumTransactions, snap.TotalTransferred, snap.TotalBalance)
}

// emitLoop é o único consumidor do canal de linhas: cada worker
// enfileira uma linha pronta assim que obtém o outcome da mutação, em
// vez de escrevê-la em stdout dentro da seção crítica de bank.State —
// isso mantém a seção crítica restrita à mutação em si. A ordem de
// chegada no canal é a ordem de processamento dos eventos que as
// produziram, já que cada worker enfileira sob orderMu, logo após a
// mutação. Termina quando o canal fecha, após o último worker sair.
func (s *Server) emitLoop() error {
	for line := range s.lines {
		fmt.Fprintln(os.Stdout, line)
	}
	return nil
}
