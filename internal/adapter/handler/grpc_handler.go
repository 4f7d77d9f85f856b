package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
)

const ServiceName = "cart.v1.CartService"

// CartRequest is the single request message of every RPC; each method reads
// the fields it needs.
type CartRequest struct {
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId,omitempty"`
	Item      *domain.LineItem `json:"item,omitempty"`
	Open      bool             `json:"open,omitempty"`
	Phase     domain.Phase     `json:"checkoutProgress,omitempty"`
}

type OrdersReply struct {
	Orders []OrderView `json:"orders"`
}

type CartServiceServer interface {
	GetCart(context.Context, *CartRequest) (*CartView, error)
	AddToCart(context.Context, *CartRequest) (*CartView, error)
	RemoveFromCart(context.Context, *CartRequest) (*CartView, error)
	ClearCart(context.Context, *CartRequest) (*CartView, error)
	SetCartOpen(context.Context, *CartRequest) (*CartView, error)
	SetCheckoutProgress(context.Context, *CartRequest) (*CartView, error)
	BeginPayment(context.Context, *CartRequest) (*PaymentView, error)
	ConfirmPayment(context.Context, *CartRequest) (*ConfirmResponse, error)
	Acknowledge(context.Context, *CartRequest) (*CartView, error)
	Cancel(context.Context, *CartRequest) (*CartView, error)
	ListOrders(context.Context, *CartRequest) (*OrdersReply, error)
}

type GRPCHandler struct {
	ops cartOps
}

func NewGRPCHandler(registry *service.SessionRegistry, checkout *service.CheckoutService, log zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{ops: cartOps{
		registry: registry,
		checkout: checkout,
		log:      log.With().Str("component", "grpc").Logger(),
	}}
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *CartRequest) (*CartView, error) {
	state, err := h.ops.cart(ctx, req.SessionID)
	return h.cartReply(state, err)
}

func (h *GRPCHandler) AddToCart(ctx context.Context, req *CartRequest) (*CartView, error) {
	return h.itemMutation(ctx, req, (*service.CartStore).AddToCart)
}

func (h *GRPCHandler) RemoveFromCart(ctx context.Context, req *CartRequest) (*CartView, error) {
	return h.itemMutation(ctx, req, (*service.CartStore).RemoveFromCart)
}

func (h *GRPCHandler) itemMutation(ctx context.Context, req *CartRequest, apply func(*service.CartStore, context.Context, domain.LineItem) error) (*CartView, error) {
	if req.Item == nil {
		return nil, status.Error(grpcCode(errInvalidRequest), "item is required")
	}
	if err := validateItem(*req.Item); err != nil {
		return nil, h.toStatus(err)
	}

	state, err := h.ops.mutate(ctx, req.SessionID, func(s *service.CartStore) error {
		return apply(s, ctx, *req.Item)
	})
	return h.cartReply(state, err)
}

func (h *GRPCHandler) ClearCart(ctx context.Context, req *CartRequest) (*CartView, error) {
	state, err := h.ops.mutate(ctx, req.SessionID, func(s *service.CartStore) error {
		return s.ClearCart(ctx)
	})
	return h.cartReply(state, err)
}

func (h *GRPCHandler) SetCartOpen(ctx context.Context, req *CartRequest) (*CartView, error) {
	state, err := h.ops.mutate(ctx, req.SessionID, func(s *service.CartStore) error {
		return s.SetCartOpen(ctx, req.Open)
	})
	return h.cartReply(state, err)
}

func (h *GRPCHandler) SetCheckoutProgress(ctx context.Context, req *CartRequest) (*CartView, error) {
	phase, err := domain.ParsePhase(string(req.Phase))
	if err != nil {
		return nil, h.toStatus(err)
	}
	state, err := h.ops.mutate(ctx, req.SessionID, func(s *service.CartStore) error {
		return s.Transition(ctx, phase, false)
	})
	return h.cartReply(state, err)
}

func (h *GRPCHandler) BeginPayment(ctx context.Context, req *CartRequest) (*PaymentView, error) {
	payment, state, err := h.ops.beginPayment(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &PaymentView{
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		LineItems: payment.LineItems,
		Cart:      newCartView(state),
	}, nil
}

func (h *GRPCHandler) ConfirmPayment(ctx context.Context, req *CartRequest) (*ConfirmResponse, error) {
	order, state, err := h.ops.confirmPayment(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ConfirmResponse{Order: newOrderView(order), Cart: newCartView(state)}, nil
}

func (h *GRPCHandler) Acknowledge(ctx context.Context, req *CartRequest) (*CartView, error) {
	state, err := h.ops.mutate(ctx, req.SessionID, func(s *service.CartStore) error {
		return h.ops.checkout.Acknowledge(ctx, s)
	})
	return h.cartReply(state, err)
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *CartRequest) (*CartView, error) {
	state, err := h.ops.mutate(ctx, req.SessionID, func(s *service.CartStore) error {
		return h.ops.checkout.Cancel(ctx, s)
	})
	return h.cartReply(state, err)
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *CartRequest) (*OrdersReply, error) {
	orders, err := h.ops.checkout.ListOrders(ctx, req.UserID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	reply := &OrdersReply{Orders: make([]OrderView, 0, len(orders))}
	for _, o := range orders {
		reply.Orders = append(reply.Orders, newOrderView(o))
	}
	return reply, nil
}

func (h *GRPCHandler) cartReply(state domain.CartState, err error) (*CartView, error) {
	if err != nil {
		return nil, h.toStatus(err)
	}
	view := newCartView(state)
	return &view, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	code := grpcCode(err)
	if httpStatus(err) >= 500 {
		h.ops.log.Error().Err(err).Msg("rpc failed")
	}
	return status.Error(code, publicMessage(err))
}

func unaryMethod[Resp any](name string, call func(CartServiceServer, context.Context, *CartRequest) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(CartRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CartServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CartServiceServer), ctx, req.(*CartRequest))
			})
		},
	}
}

// CartServiceDesc is declared by hand; messages travel through the json codec.
var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetCart", CartServiceServer.GetCart),
		unaryMethod("AddToCart", CartServiceServer.AddToCart),
		unaryMethod("RemoveFromCart", CartServiceServer.RemoveFromCart),
		unaryMethod("ClearCart", CartServiceServer.ClearCart),
		unaryMethod("SetCartOpen", CartServiceServer.SetCartOpen),
		unaryMethod("SetCheckoutProgress", CartServiceServer.SetCheckoutProgress),
		unaryMethod("BeginPayment", CartServiceServer.BeginPayment),
		unaryMethod("ConfirmPayment", CartServiceServer.ConfirmPayment),
		unaryMethod("Acknowledge", CartServiceServer.Acknowledge),
		unaryMethod("Cancel", CartServiceServer.Cancel),
		unaryMethod("ListOrders", CartServiceServer.ListOrders),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cart/v1/cart.json",
}

// CartServiceClient calls CartService over a connection using the json codec.
type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

// Invoke calls method and decodes the reply into out.
func (c *CartServiceClient) Invoke(ctx context.Context, method string, in *CartRequest, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *CartServiceClient) GetCart(ctx context.Context, in *CartRequest) (*CartView, error) {
	out := new(CartView)
	return out, c.Invoke(ctx, "GetCart", in, out)
}

func (c *CartServiceClient) AddToCart(ctx context.Context, in *CartRequest) (*CartView, error) {
	out := new(CartView)
	return out, c.Invoke(ctx, "AddToCart", in, out)
}

func (c *CartServiceClient) BeginPayment(ctx context.Context, in *CartRequest) (*PaymentView, error) {
	out := new(PaymentView)
	return out, c.Invoke(ctx, "BeginPayment", in, out)
}

func (c *CartServiceClient) ConfirmPayment(ctx context.Context, in *CartRequest) (*ConfirmResponse, error) {
	out := new(ConfirmResponse)
	return out, c.Invoke(ctx, "ConfirmPayment", in, out)
}

func (c *CartServiceClient) ListOrders(ctx context.Context, in *CartRequest) (*OrdersReply, error) {
	out := new(OrdersReply)
	return out, c.Invoke(ctx, "ListOrders", in, out)
}
