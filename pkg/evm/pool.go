package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the part of an RPC client the chain readers need.
type Backend interface {
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Dialer hands out a Backend for an endpoint URL.
type Dialer interface {
	Backend(ctx context.Context, url string) (Backend, error)
}

// Pool keeps one ethclient per endpoint URL so every tick reuses connections.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

func NewPool() *Pool {
	return &Pool{clients: make(map[string]*ethclient.Client)}
}

// Client returns the cached client for url, dialing it on first use.
func (p *Pool) Client(ctx context.Context, url string) (*ethclient.Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("rpc url missing")
	}

	p.mu.Lock()
	c, ok := p.clients[url]
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	// websocket URLs connect here, so dial outside the lock
	dialed, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[url]; ok {
		dialed.Close()
		return c, nil
	}
	p.clients[url] = dialed
	return dialed, nil
}

func (p *Pool) Backend(ctx context.Context, url string) (Backend, error) {
	c, err := p.Client(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Len reports how many endpoints have a live client.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, c := range p.clients {
		c.Close()
		delete(p.clients, url)
	}
}
