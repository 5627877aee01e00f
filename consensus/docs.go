package consensus

//            AddBlocks / GetMissingBlocks
// peers ---------------------------------+
//                                        v
//                              +--------------------+   owns   +------+
//                              |     CoreThread     | -------> | Core |
//                              | (ConsensusDispatch)|          +------+
//                              +--------------------+            |  |
//                                        ^                       |  | EventNewBlock
//                      ForceNewBlock     |                       |  v
//                                        |     Publish(round)    |  Broadcaster
//                              +--------------------+            |
//                              | LeaderTimeoutTask  | <--- RoundSignal
//                              +--------------------+

// Core - 单线程的DAG共识状态
//	- ThresholdClock - 收到2f+1个round r的区块后进入round r+1
//	- 挂起缺少祖先的区块，并记录缺失的区块
//	- 有上一轮leader的区块，或者被ForceNewBlock强制时产生本节点的区块
//	- Store - 持久化已接受的区块
//	- Mempool - 提案时取出交易
// CoreThread - 唯一拥有Core的goroutine，所有调用都通过mailbox排队执行
// RoundSignal - 只保留最新round的广播通道，Core发布，LeaderTimeoutTask订阅
// LeaderTimeoutTask - 每个round只等待一次leader_timeout，超时后调用ForceNewBlock
