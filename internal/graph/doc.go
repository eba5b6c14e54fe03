// Package graph assembles generation workflow graphs in the server's API
// wire format.
//
// A graph is a flat map of numbered nodes. Each node names a server-side
// class and its inputs, and an input holds either a literal value or a
// [nodeID, outputSlot] reference to another node. Build produces the
// fifteen-node HunyuanVideo 1.5 graph used for every generation: text
// encoder, diffusion, and VAE loaders, prompt conditioning, the sampling
// chain, and the decode/save tail. Parameter variants swap individual node
// inputs (image-to-video weights, fp8 loading, tiled decode) without
// changing the graph shape, and a pinned seed makes the output byte for
// byte reproducible.
//
// Graphs marshal directly to the JSON body of a job submission. Validate
// guards against dangling references and reference cycles before anything
// reaches the server.
package graph
