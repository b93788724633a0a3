package server

import (
	"context"
)

type registerAssetParams struct {
	assetParams
	Owner string `json:"owner"`
}

type creditParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

// Dev methods seed and inspect the reference ledger. They are only routed when
// the daemon runs in dev mode.

func (s *Server) handleDevRegisterAsset(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params registerAssetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseActor("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	err := s.engine.Update(ctx, func(context.Context) error {
		return s.ledger.RegisterAsset(key, owner)
	})
	if err != nil {
		return nil, &RPCError{Code: codeMarketConflict, Message: "register_failed", Data: err.Error()}
	}
	return okResponse, nil
}

func (s *Server) handleDevCredit(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params creditParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseActor("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	err := s.engine.Update(ctx, func(context.Context) error {
		return s.ledger.Credit(addr, amount)
	})
	if err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleDevBalance(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseActor("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var balance string
	err := s.engine.Update(ctx, func(context.Context) error {
		bal, err := s.ledger.Balance(addr)
		if err != nil {
			return err
		}
		balance = formatAmount(bal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"address": formatActor(addr), "balance": balance}, nil
}

func (s *Server) handleDevOwner(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	var (
		owner [20]byte
		found bool
	)
	err := s.engine.Update(ctx, func(context.Context) error {
		var err error
		owner, found, err = s.ledger.Owner(key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RPCError{Code: codeMarketNotFound, Message: "not_found", Data: "asset not registered"}
	}
	return map[string]string{
		"collection": formatCollection(key.Collection),
		"assetId":    key.AssetIDString(),
		"owner":      formatActor(owner),
	}, nil
}
